// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/appendfs/appendfs/internal/inspect"
	"github.com/appendfs/appendfs/internal/storage"
	"github.com/spf13/cobra"
)

var (
	inspectNode  string
	inspectDir   string
	inspectXattr string
	inspectFS    string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags]",
	Short: "Decode raw filesystem state from the object store",
	Long: `inspect reads objects straight from the store and prints their decoded
form: every generation of an inode log, the entries of a directory blob, or
the pairs of an xattr blob. It never writes anything.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// --fs is pure derivation and needs no store.
		if inspectFS != "" {
			return nil
		}

		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect()
	},
}

func init() {
	flags := inspectCmd.Flags()

	flags.StringVar(&inspectNode, "node", "", "Hex ref of an inode log to decode.")
	flags.StringVar(&inspectDir, "dir", "", "Hex ref of a directory blob to decode.")
	flags.StringVar(&inspectXattr, "xattr", "", "Hex ref of an xattr blob to decode.")
	flags.StringVar(&inspectFS, "fs", "", "Filesystem name; prints the ref of its root inode log.")
}

func runInspect() (err error) {
	if inspectFS != "" {
		fmt.Printf("%s\n", storage.RefForName(inspectFS))
		return
	}

	store, closer, err := openStore(&mountConfig)
	if err != nil {
		return
	}

	if closer != nil {
		defer closer()
	}

	ctx := context.Background()

	switch {
	case inspectNode != "":
		var ref storage.Ref
		if ref, err = storage.ParseRef(inspectNode); err != nil {
			return
		}

		gens, err := inspect.History(ctx, store, ref)
		if err != nil {
			return err
		}

		for i, in := range gens {
			fmt.Printf("Generation %d\n%s\n", i, inspect.FormatInode(in))
		}

	case inspectDir != "":
		var ref storage.Ref
		if ref, err = storage.ParseRef(inspectDir); err != nil {
			return
		}

		entries, err := inspect.Dir(ctx, store, ref)
		if err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("%s %s\n", e.Node, e.Name)
		}

	case inspectXattr != "":
		var ref storage.Ref
		if ref, err = storage.ParseRef(inspectXattr); err != nil {
			return
		}

		attrs, err := inspect.Xattrs(ctx, store, ref)
		if err != nil {
			return err
		}

		for _, a := range attrs {
			fmt.Printf("%s = %q\n", a.Name, a.Value)
		}

	default:
		fmt.Fprintln(os.Stderr, "one of --node, --dir, --xattr or --fs is required")
		return fmt.Errorf("nothing to inspect")
	}

	return nil
}
