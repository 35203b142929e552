package sip

import (
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func appendVersionAttr(out []attribute.KeyValue, m *debug.Module) []attribute.KeyValue {
	switch m.Path {
	case "github.com/sipbell/bell":
		out = append(out, attribute.String(
			"sipbell.version", m.Version,
		))
	case "github.com/icholy/digest":
		out = append(out, attribute.String(
			"sipbell.digest.version", m.Version,
		))
	}
	return out
}

func getVersions() []attribute.KeyValue {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	var out []attribute.KeyValue
	out = appendVersionAttr(out, &info.Main)
	for _, d := range info.Deps {
		out = appendVersionAttr(out, d)
	}
	return out
}

var Tracer = otel.Tracer(
	"github.com/sipbell/bell",
	trace.WithInstrumentationAttributes(getVersions()...),
)
