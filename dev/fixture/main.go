package main

import (
	"flag"
	"log/slog"
	"net/http"

	"gtinlookup/internal/fixture"
	"gtinlookup/lib/util/serviceutil"
)

func main() {
	addr := flag.String("addr", "localhost:8089", "address to serve the fixture site on")
	flag.Parse()

	slog.Info("serving fixture site", "addr", *addr, "identifiers", fixture.Identifiers())
	err := http.ListenAndServe(*addr, fixture.Handler())
	if err != nil {
		serviceutil.Fatal("failed to serve fixture site", err)
	}
}
