// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"bufio"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	sampledata "github.com/elastic/go-sampledata"
)

func generateCmd(v *viper.Viper) *cobra.Command {
	var (
		number  int
		mapping bool
		seed    uint64
	)
	cmd := &cobra.Command{
		Use:   "generate TEMPLATE",
		Short: "Print generated documents as NDJSON",
		Long: "Print documents generated from TEMPLATE, a JSON mapping or shorthand template, " +
			"or the name of a .json, .ndjson or .csv template file, one per line.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v.GetString(logLevelFlag))
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg := sampledata.Config{Logger: logger}
			if seed != 0 {
				cfg.Faker = gofakeit.New(seed)
			}
			g, err := sampledata.NewGenerator(cfg)
			if err != nil {
				return err
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()
			for n := 0; n < number; n++ {
				var docs []sampledata.Document
				if sampledata.IsFileTemplate(args[0]) {
					docs, err = g.GenerateFile(args[0])
				} else {
					docs, err = g.GenerateAll(args[0], mapping)
				}
				if err != nil {
					return err
				}
				for _, doc := range docs {
					if _, err := doc.WriteTo(out); err != nil {
						return err
					}
					if _, err := fmt.Fprintln(out); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "number", "n", 6, "The number of times the template is generated")
	cmd.Flags().BoolVar(&mapping, "mapping", true, "Whether the template is a mapping rather than a shorthand template")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for reproducible output; 0 picks a random seed")
	return cmd
}
