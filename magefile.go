//go:build mage
// +build mage

package main

import (
	"context"
	"fmt"
	"go/build"
	"os"

	"github.com/livekit/mageutil"
)

var Default = Build

func Build() error {
	gopath := os.Getenv("GOPATH")
	if gopath == "" {
		gopath = build.Default.GOPATH
	}

	return mageutil.Run(context.Background(),
		fmt.Sprintf("go build -o %s/bin/bell ./cmd/bell", gopath),
	)
}

func Test() error {
	return mageutil.Run(context.Background(), "go test -race ./...")
}
