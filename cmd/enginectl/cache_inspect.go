package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lxgc/enginecore/internal/cache"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect streamed cache files",
	}
	cmd.AddCommand(cacheInspectCmd())
	return cmd
}

func cacheInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print a texture cache's size accounting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectCache(args[0])
		},
	}
}

func inspectCache(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	c, err := cache.Open[cache.TexturePathKey](f, cache.TexturePathKeyCodec{}, true)
	if err != nil {
		return fmt.Errorf("opening cache %s: %w", path, err)
	}

	fmt.Printf("file:       %s\n", path)
	fmt.Printf("used:       %d bytes\n", c.UsedSpace())
	fmt.Printf("free:       %d bytes\n", c.FreeSpace())
	fmt.Printf("total:      %d bytes\n", c.TotalSpace())
	fmt.Printf("hard limit: %d bytes\n", c.HardSizeLimit())
	return nil
}
