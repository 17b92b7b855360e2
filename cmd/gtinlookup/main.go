package main

import (
	"context"

	"gtinlookup/cmd/gtinlookup/commands"
	"gtinlookup/lib/osutil"
)

func main() {
	ctx, cancel := osutil.SignalContext(context.Background())
	defer cancel()
	commands.ExecuteContext(ctx)
}
