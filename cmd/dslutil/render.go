// Copyright 2025 Ian Lewis
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

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render articles as HTML",
		ArgsUsage: "[WORD]",
		Description: `Look up a word in all dictionaries in the data directories and print
the matching articles as HTML.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "ignore-diacritics",
				Usage:   "match headwords with combining marks stripped",
				Aliases: []string{"i"},
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("%w: unexpected number of arguments", ErrFlagParse)
			}
			word := c.Args().Get(0)

			dicts, errs := openDictionaries(c)
			for _, err := range errs {
				fmt.Fprintln(os.Stderr, err)
			}
			defer func() {
				for _, d := range dicts {
					d.Close()
				}
			}()

			for _, d := range dicts {
				articles, err := d.Articles(c.Context, word, c.Bool("ignore-diacritics"))
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				for _, a := range articles {
					fmt.Println(a.HTML)
				}
			}

			if len(errs) > 0 {
				return cli.Exit("", ExitCodeUnknownError)
			}
			return nil
		},
	}
}
