package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/artifacts"
	"github.com/urfave/cli/v3"
)

func packCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "store a module directory as a bundle artifact and print its key",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "entry", Value: "index.js"},
			&cli.BoolFlag{Name: "zstd", Usage: "compress the bundle"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one module directory")
			}
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			files, err := readModuleDir(cmd.Args().First())
			if err != nil {
				return err
			}
			entry := cmd.String("entry")
			if !slices.ContainsFunc(files, func(f api.File) bool { return f.RelPath == entry }) {
				return fmt.Errorf("entry file %s not found in %s", entry, cmd.Args().First())
			}
			data, err := json.Marshal(api.Bundle{EntryFile: entry, Files: files})
			if err != nil {
				return err
			}
			if cmd.Bool("zstd") {
				data = artifacts.Compress(data)
			}

			store, err := openArtifacts(cfg.Artifacts)
			if err != nil {
				return err
			}
			key, err := store.PutBytes(ctx, data)
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "remove a bundle artifact from the store",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one artifact key")
			}
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			store, err := openArtifacts(cfg.Artifacts)
			if err != nil {
				return err
			}
			return store.Delete(ctx, cmd.Args().First())
		},
	}
}

// readModuleDir loads every regular file under dir. Hidden directories
// such as .git and node_modules are skipped.
func readModuleDir(dir string) ([]api.File, error) {
	var files []api.File
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, api.File{RelPath: filepath.ToSlash(rel), Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", dir, err)
	}
	return files, nil
}
