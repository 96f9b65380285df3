package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ergochat/readline"
)

// completionSource supplies the live values tab completion offers.
type completionSource struct {
	// games lists the joined games.
	games func() []string
	// users lists the users that reported on a game.
	users func(game string) []string
	// root resolves relative paths typed for report and summary files.
	root string
}

// newCompleter builds the tab completion tree for the REPL commands.
//
//	login
//	join
//	exit    {joined game}
//	report  {path}
//	summary {joined game} {reporting user} {path}
//	logout
//	help    {command}
//	quit
func newCompleter(src completionSource) *readline.PrefixCompleter {
	games := func(string) []string { return src.games() }
	users := func(line string) []string {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil
		}
		return src.users(fields[1])
	}
	paths := func(line string) []string { return pathCandidates(src.root, currentWord(line)) }

	topics := make([]*readline.PrefixCompleter, 0, len(commandNames))
	for _, name := range sortedCommandNames() {
		topics = append(topics, readline.PcItem(name))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("login"),
		readline.PcItem("join"),
		readline.PcItem("exit", readline.PcItemDynamic(games)),
		readline.PcItem("report", readline.PcItemDynamic(paths)),
		readline.PcItem("summary",
			readline.PcItemDynamic(games,
				readline.PcItemDynamic(users,
					readline.PcItemDynamic(paths),
				),
			),
		),
		readline.PcItem("logout"),
		readline.PcItem("help", topics...),
		readline.PcItem("quit"),
	)
}

func sortedCommandNames() []string {
	names := make([]string, 0, len(commandNames))
	for name := range commandNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// currentWord returns the word being typed at the end of line, or "" when
// line ends in a space.
func currentWord(line string) string {
	if line == "" || strings.HasSuffix(line, " ") {
		return ""
	}
	fields := strings.Fields(line)
	return fields[len(fields)-1]
}

// pathCandidates lists the entries of the directory named by typed, keeping
// the typed directory part so candidates extend what is already on the line.
// Only directories and .json files are offered; hidden entries are skipped
// unless their name has been started.
func pathCandidates(root, typed string) []string {
	dir, base := filepath.Split(typed)

	lookup := dir
	if lookup == "" {
		lookup = "."
	}
	if !filepath.IsAbs(lookup) {
		lookup = filepath.Join(root, lookup)
	}

	entries, err := os.ReadDir(lookup)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		switch {
		case e.IsDir():
			out = append(out, dir+name+string(filepath.Separator))
		case strings.EqualFold(filepath.Ext(name), ".json"):
			out = append(out, dir+name)
		}
	}
	return out
}
