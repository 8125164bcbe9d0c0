package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"torrentplay/internal/domain"
	"torrentplay/internal/services/torrent/parser"
)

func newInspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect [torrent-file]",
		Short: "Parse a .torrent file and print its descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			id := domain.TorrentID(strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])))
			desc, err := parser.NewService().Parse(id, blob)
			if err != nil {
				return err
			}
			if asJSON {
				return writeDescriptorJSON(cmd.OutOrStdout(), desc)
			}
			writeDescriptorText(cmd.OutOrStdout(), desc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the descriptor as JSON")
	return cmd
}

func writeDescriptorJSON(w io.Writer, desc *domain.Descriptor) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(desc)
}

func writeDescriptorText(w io.Writer, desc *domain.Descriptor) {
	fmt.Fprintf(w, "Name:      %s\n", desc.Name)
	fmt.Fprintf(w, "InfoHash:  %s\n", desc.InfoHash)
	fmt.Fprintf(w, "Size:      %s (%d bytes)\n", humanBytes(desc.Length), desc.Length)
	fmt.Fprintf(w, "Pieces:    %d x %s\n", desc.NumPieces, humanBytes(desc.PieceLength))
	fmt.Fprintf(w, "Files:     %d\n", len(desc.Files))
	for _, f := range desc.Files {
		fmt.Fprintf(w, "  [%d] %s  %s  pieces %d-%d\n", f.Index, f.Path, humanBytes(f.Length), f.StartPiece, f.EndPiece)
	}
}
