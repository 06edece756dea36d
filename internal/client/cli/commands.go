package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/common"
)

// errUsage marks a command invoked with the wrong arguments.
var errUsage = errors.New("usage")

func usage(text string) error {
	return fmt.Errorf("%w: %s", errUsage, text)
}

// keysPath returns the first argument or the configured key store file.
func (a *App) keysPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.config.KeysFile
}

func (a *App) printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(a.out, "Warning:", w)
	}
}

// Connect opens a session to the address in args, or to the configured one.
func (a *App) Connect(ctx context.Context, args []string) error {
	addr := ""
	if len(args) > 0 {
		addr = args[0]
	}
	if err := a.client.Connect(ctx, addr); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Connected to", a.client.Addr())
	return nil
}

// Disconnect closes the session.
func (a *App) Disconnect(_ context.Context, _ []string) error {
	if err := a.client.Disconnect(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Disconnected")
	return nil
}

// Upload sends a file and persists the returned key.
func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("upload <path>")
	}

	res, err := a.client.Upload(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Uploaded %s (%d bytes)\n", res.Name, res.Size)
	if res.FileID != "" {
		fmt.Fprintln(a.out, "File ID:", res.FileID)
	}
	fmt.Fprintln(a.out, "Checksum:", res.Checksum)
	a.printWarnings(res.Warnings)

	if res.KeyStored {
		if err := a.saveKeyStore(a.config.KeysFile); err != nil {
			return fmt.Errorf("file uploaded but key store not saved: %w", err)
		}
	}
	return nil
}

// Download fetches a file by id, optionally into an explicit output path.
func (a *App) Download(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("download <id> [output]")
	}
	output := ""
	if len(args) == 2 {
		output = args[1]
	}

	res, err := a.client.Download(ctx, args[0], output)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Saved %s (%d bytes)\n", res.Path, res.Size)
	a.printWarnings(res.Warnings)
	return nil
}

// List prints the server catalogue.
func (a *App) List(ctx context.Context, _ []string) error {
	files, err := a.client.List(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "No files")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tCREATED\tKEY")
	for _, f := range files {
		_, known := a.keys.Get(f.ID)
		key := "-"
		if known {
			key = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, f.MimeType, f.CreatedTime, key)
	}
	return w.Flush()
}

// Keys prints the ids with a cached key. Keys are abbreviated.
func (a *App) Keys(_ context.Context, _ []string) error {
	all := a.keys.All()
	if len(all) == 0 {
		fmt.Fprintln(a.out, "No keys")
		return nil
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		k := all[id]
		if len(k) > 8 {
			k = k[:8] + "..."
		}
		fmt.Fprintf(a.out, "%s  %s\n", id, k)
	}
	return nil
}

// SaveKeys writes the key store.
func (a *App) SaveKeys(_ context.Context, args []string) error {
	path := a.keysPath(args)
	if err := a.saveKeyStore(path); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %d keys to %s\n", a.keys.Len(), path)
	return nil
}

// LoadKeys replaces the key store with the contents of a file.
func (a *App) LoadKeys(_ context.Context, args []string) error {
	path := a.keysPath(args)
	if err := a.openKeyStore(path); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Loaded %d keys from %s\n", a.keys.Len(), path)
	return nil
}

// Seal protects the key store file with a passphrase. Later saves stay
// sealed for the rest of the run.
func (a *App) Seal(_ context.Context, args []string) error {
	path := a.keysPath(args)

	first, err := getPassphrase(a.out, "New passphrase: ")
	if err != nil {
		return err
	}
	second, err := getPassphrase(a.out, "Repeat passphrase: ")
	if err != nil {
		common.WipeByteArray(first)
		return err
	}
	defer common.WipeByteArray(second)

	if len(first) == 0 || string(first) != string(second) {
		common.WipeByteArray(first)
		return errors.New("passphrases are empty or do not match")
	}

	if err := a.keys.SaveSealed(path, first); err != nil {
		common.WipeByteArray(first)
		return err
	}
	a.setPassphrase(first)
	fmt.Fprintf(a.out, "Sealed %d keys into %s\n", a.keys.Len(), path)
	return nil
}

// Discover browses the LAN and optionally connects to a chosen server.
func (a *App) Discover(ctx context.Context, _ []string) error {
	fmt.Fprintln(a.out, "Searching for servers...")
	servers, err := a.browse(ctx)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Fprintln(a.out, "No servers found")
		return nil
	}

	for i, s := range servers {
		fmt.Fprintf(a.out, "%d) %s  %s\n", i+1, s.Instance, s.Address())
	}

	choice, err := getSimpleText(a.reader, "Select a server (empty to skip)", a.out)
	if err != nil || choice == "" {
		return nil
	}
	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(servers) {
		return fmt.Errorf("invalid choice %q", choice)
	}
	return a.Connect(ctx, []string{servers[n-1].Address()})
}

// History prints recent transfers, newest first.
func (a *App) History(ctx context.Context, args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return usage("history [limit]")
		}
		limit = n
	}

	if a.config.HistoryDB == "" {
		fmt.Fprintln(a.out, "History is disabled")
		return nil
	}
	recs, err := a.client.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No transfers yet")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tDIRECTION\tNAME\tSIZE\tID")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.CreatedAt.Local().Format(time.DateTime), r.Direction, r.Name, r.Size, r.RemoteID)
	}
	return w.Flush()
}
