package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/v0xg/ohmycomment/internal/dom"
	"github.com/v0xg/ohmycomment/internal/extractor"
	"github.com/v0xg/ohmycomment/internal/locator"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file.html> <xpath>",
		Short: "Print the Markdown context a field in a saved page would send",
		Long: `Parses a saved HTML page, finds the editable field at or above the node
the XPath names, and prints the Markdown the extractor builds for it.

Example:
  ohmycomment extract thread.html "/html[1]/body[1]/main[1]/form[1]/textarea[1]"`,
		Args: cobra.ExactArgs(2),
		RunE: runExtract,
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}
	doc, err := dom.Parse(string(raw))
	if err != nil {
		return err
	}
	node, err := dom.ResolveXPath(doc, args[1])
	if err != nil {
		return err
	}

	loc := locator.New()
	if len(cfg.RichEditorPrefixes) > 0 {
		loc.RichEditorPrefixes = cfg.RichEditorPrefixes
	}
	target := loc.Find(node)
	if target == nil {
		return fmt.Errorf("no editable field at or above %s", args[1])
	}
	logVerbose("Field: %s", dom.XPath(target))

	fmt.Println(extractor.New(cfg.Extractor, log).Extract(target))
	return nil
}
