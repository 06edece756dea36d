package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

func (a *App) getStatus() string {
	if a.client != nil && a.client.Connected() {
		return fmt.Sprintf("(%s)", a.client.Addr())
	}
	return "(offline)"
}

// Root prints the banner and runs the REPL on stdin.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "securexfer client (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}
