// Package flagx lets several components parse their own subset of os.Args
// without tripping over each other's flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the subset of args made of allowed flags and their values.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//  3. Boolean flags listed in boolFlags:     -dev-tls (never consumes a value)
//
// A separate value is only taken when it does not itself start with '-'.
// The result is never nil.
func FilterArgs(args []string, allowedFlags []string, boolFlags ...string) []string {
	allowed := make(map[string]bool, len(allowedFlags)+len(boolFlags))
	for _, f := range allowedFlags {
		allowed[f] = false
	}
	for _, f := range boolFlags {
		allowed[f] = true
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		isBool, ok := allowed[arg]
		if !ok {
			continue
		}
		filtered = append(filtered, arg)
		if isBool {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// JsonConfigFlags extracts the config file path given with -c or -config.
// Other arguments are ignored. An empty string means no file was requested.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}
