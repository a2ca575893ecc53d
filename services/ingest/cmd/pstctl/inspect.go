package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"vericase/services/ingest/internal/container"
	"vericase/services/ingest/internal/extract"
)

func newInspectCmd() *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:   "inspect [pst file]",
		Short: "Print the folder tree of a PST file with message counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctr, err := container.NewPSTOpener().Open(args[0])
			if err != nil {
				return err
			}
			defer ctr.Close()
			root, err := ctr.Root()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			total := printTree(out, root, "", 0, sample)
			fmt.Fprintf(out, "\n%d messages\n", total)
			return nil
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 0, "print the first n messages of each folder")
	return cmd
}

// printTree writes one line per folder and returns the advertised message total.
func printTree(w io.Writer, folder container.Folder, parent string, depth, sample int) int {
	name := strings.TrimSpace(folder.Name())
	if name == "" && parent == "" {
		name = extract.RootName
	}
	path := name
	if parent != "" {
		path = parent + "/" + name
	}
	indent := strings.Repeat("  ", depth)
	count := folder.MessageCount()
	fmt.Fprintf(w, "%s%s (%d)\n", indent, name, count)

	for i := 0; i < count && i < sample; i++ {
		msg, err := folder.Message(i)
		if err != nil {
			fmt.Fprintf(w, "%s  ! message %d: %v\n", indent, i, err)
			continue
		}
		ev := extract.BuildEvidence(msg, path)
		date := "-"
		if ev.Date != nil {
			date = ev.Date.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s  - %s  %s  %q\n", indent, date, ev.SenderEmail, ev.Subject)
	}

	total := count
	for i := 0; i < folder.SubFolderCount(); i++ {
		sub, err := folder.SubFolder(i)
		if err != nil {
			fmt.Fprintf(w, "%s  ! subfolder %d: %v\n", indent, i, err)
			continue
		}
		total += printTree(w, sub, path, depth+1, sample)
	}
	return total
}
