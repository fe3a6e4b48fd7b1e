// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	protolib "github.com/ZaparooProject/go-protolib"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("%w: output format %q (want text, json or yaml)", protolib.ErrInvalidParameter, format)
	}
}

// emit writes v to the command output in the selected format.
func (a *app) emit(cmd *cobra.Command, v any) error {
	return render(cmd.OutOrStdout(), a.output, v)
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("format json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case formatYAML:
		b, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("format yaml: %w", err)
		}
		_, err = w.Write(b)
		return err
	default:
		return renderText(w, v)
	}
}

// renderText prints Stringers as one line, structs as an aligned
// "Name: value" list and slices of structs as a table.
func renderText(w io.Writer, v any) error {
	if s, ok := v.(fmt.Stringer); ok {
		_, err := fmt.Fprintln(w, s.String())
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Struct:
		t := rv.Type()
		for i := range t.NumField() {
			if t.Field(i).IsExported() {
				_, _ = fmt.Fprintf(tw, "%s:\t%v\n", t.Field(i).Name, rv.Field(i).Interface())
			}
		}
	case reflect.Slice:
		if rv.Len() == 0 {
			_, _ = fmt.Fprintln(tw, "none")
			break
		}
		if rv.Type().Elem().Kind() != reflect.Struct {
			for i := range rv.Len() {
				_, _ = fmt.Fprintln(tw, rv.Index(i).Interface())
			}
			break
		}
		t := rv.Type().Elem()
		headers := make([]string, 0, t.NumField())
		for i := range t.NumField() {
			headers = append(headers, strings.ToUpper(t.Field(i).Name))
		}
		_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
		for i := range rv.Len() {
			row := rv.Index(i)
			cells := make([]string, row.NumField())
			for j := range row.NumField() {
				cells[j] = fmt.Sprint(row.Field(j).Interface())
			}
			_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
	default:
		_, _ = fmt.Fprintln(tw, v)
	}
	return tw.Flush()
}
