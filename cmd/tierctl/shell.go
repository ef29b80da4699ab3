package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell with completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("shell requires an interactive terminal")
		}

		fmt.Printf("tierctl shell, daemon at %s (exit with 'exit' or Ctrl-D)\n", daemonURL)
		p := prompt.New(
			shellExecutor,
			shellCompleter,
			prompt.OptionTitle("tierctl"),
			prompt.OptionPrefix("tierd> "),
			prompt.OptionMaxSuggestion(12),
		)
		p.Run()
		return nil
	},
}

func shellExecutor(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if fields[0] == "exit" || fields[0] == "quit" {
		os.Exit(0)
	}

	rootCmd.SetArgs(fields)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

var shellCommands = []prompt.Suggest{
	{Text: "status", Description: "Show controller status"},
	{Text: "partitions", Description: "List hot and archived partitions"},
	{Text: "archive", Description: "Archive partitions to the external disk"},
	{Text: "restore", Description: "Restore an archived partition"},
	{Text: "backup", Description: "Run a database backup now"},
	{Text: "backups", Description: "List retained database backups"},
	{Text: "cleanup", Description: "Prune stale OIDC credentials"},
	{Text: "audit", Description: "Show the lifecycle audit trail"},
	{Text: "config", Description: "Manage the tiering policy"},
	{Text: "exit", Description: "Leave the shell"},
}

var configFields = []prompt.Suggest{
	{Text: "threshold", Description: "Disk usage percent that flags exceeded (10-95)"},
	{Text: "keep-months", Description: "Hot-tier retention horizon in months (1-60)"},
	{Text: "interval-hours", Description: "Auto-archive cadence in hours (1-168)"},
	{Text: "external-disk", Description: "Cold storage mount point"},
	{Text: "max-backups", Description: "Database dump retention count"},
}

func shellCompleter(d prompt.Document) []prompt.Suggest {
	fields := strings.Fields(d.TextBeforeCursor())
	word := d.GetWordBeforeCursor()
	if word != "" && len(fields) > 0 {
		fields = fields[:len(fields)-1]
	}

	switch {
	case len(fields) == 0:
		return prompt.FilterHasPrefix(shellCommands, word, true)
	case fields[0] == "archive":
		return prompt.FilterHasPrefix(hotPartitionSuggestions(), word, true)
	case fields[0] == "restore" && len(fields) == 1:
		return prompt.FilterHasPrefix(coldPartitionSuggestions(), word, true)
	case fields[0] == "config" && len(fields) == 1:
		return prompt.FilterHasPrefix([]prompt.Suggest{
			{Text: "get", Description: "Show the tiering policy"},
			{Text: "set", Description: "Update one policy field"},
		}, word, true)
	case fields[0] == "config" && len(fields) == 2 && fields[1] == "set":
		return prompt.FilterHasPrefix(configFields, word, true)
	}
	return nil
}

// Partition completions come from the daemon; one listing is cached briefly
// so typing does not hammer the API.
var partitionCache struct {
	mu      sync.Mutex
	hot     []prompt.Suggest
	cold    []prompt.Suggest
	fetched time.Time
}

func refreshPartitionCache() {
	partitionCache.mu.Lock()
	defer partitionCache.mu.Unlock()

	if time.Since(partitionCache.fetched) < 10*time.Second {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	list, err := client().Partitions(ctx)
	if err != nil {
		return
	}

	partitionCache.hot = partitionCache.hot[:0]
	for _, p := range list.Hot {
		if p.IsArchiveEligible {
			partitionCache.hot = append(partitionCache.hot, prompt.Suggest{
				Text:        p.Name,
				Description: fmt.Sprintf("%d rows", p.RowCount),
			})
		}
	}

	partitionCache.cold = partitionCache.cold[:0]
	for _, p := range list.Cold {
		partitionCache.cold = append(partitionCache.cold, prompt.Suggest{
			Text:        p.Name,
			Description: "archived " + p.ArchivedAt.Format("2006-01-02"),
		})
	}

	partitionCache.fetched = time.Now()
}

func hotPartitionSuggestions() []prompt.Suggest {
	refreshPartitionCache()
	partitionCache.mu.Lock()
	defer partitionCache.mu.Unlock()
	return append([]prompt.Suggest(nil), partitionCache.hot...)
}

func coldPartitionSuggestions() []prompt.Suggest {
	refreshPartitionCache()
	partitionCache.mu.Lock()
	defer partitionCache.mu.Unlock()
	return append([]prompt.Suggest(nil), partitionCache.cold...)
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
