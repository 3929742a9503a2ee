/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rulego/hive/api/types"
	"github.com/spf13/cobra"
)

func newRoutesCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "list the registered routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFile(*configFile)
			if err != nil {
				return err
			}
			a, err := newApplication(f, types.DiscardLogger())
			if err != nil {
				return err
			}
			r, err := a.app.Router()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMETHODS\tPATTERN")
			for _, route := range r.Routes() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", route.ID(), route.Name(), strings.Join(route.Methods(), ","), f.BasePath+route.Pattern())
			}
			return w.Flush()
		},
	}
}
