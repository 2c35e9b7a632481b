package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search stored memories",
		Long:  "Run dual-source retrieval (vector similarity plus entity graph) for a query and print the scored results.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	eng, facts, _, err := buildEngine(cfg)
	if err != nil {
		exitErr("open engine", err)
	}
	defer facts.Close()
	defer eng.Shutdown()

	query := strings.Join(args, " ")
	items, err := eng.Retrieve(cmd.Context(), query)
	if err != nil {
		exitErr("retrieve", err)
	}

	if len(items) == 0 {
		fmt.Println("[]")
		return
	}

	b, _ := json.MarshalIndent(items, "", "  ")
	fmt.Println(string(b))
}
