// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/nlpodyssey/tensorinspect"
	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/nlpodyssey/tensorinspect/report"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newListCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <file>...",
		Short: "List the tensors of one or more files",
		Long: `List the tensors stored in each file, in stored order.

The container format is detected from the content: safetensors files and
PyTorch zip archives are supported. Every file is processed even when some
of them fail; the command then exits with status 1.

Example:
  tensorls list model.safetensors
  tensorls list -d pytorch_model.bin
  tensorls list --format table --check-storages a.pt b.pt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig(*configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runList(cmd, args, v.GetString(cfgKeyFormat), v.GetBool(cfgKeyDetailed), inspectOptions(v))
		},
	}
	cmd.Flags().BoolP("detailed", "d", false, "print data type and shape of each tensor")
	cmd.Flags().String("format", "plain", "output format: plain, table or json")
	cmd.Flags().Int("header-size-limit", tensorinspect.DefaultHeaderSizeLimit, "maximum size of a safetensors header, 0 for no limit")
	cmd.Flags().Bool("check-storages", false, "verify that the storage of each archive tensor exists and is large enough")
	return cmd
}

func runList(cmd *cobra.Command, paths []string, format string, detailed bool, opts []tensorinspect.Option) error {
	mode, err := report.ParseMode(format)
	if err != nil {
		return err
	}
	out, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	var listings []*tensorinspect.Listing
	failed := 0
	for _, path := range paths {
		l, err := tensorinspect.Inspect(path, opts...)
		if err != nil {
			klog.V(1).Infof("%s: %s", path, errkind.KindOf(err))
			fmt.Fprintf(stderr, "tensorls: %v\n", err)
			failed++
			continue
		}
		klog.V(1).Infof("%s: %d tensors (%s)", path, len(l.Tensors), l.Format)
		if mode == report.JSON {
			listings = append(listings, l)
			continue
		}
		if len(paths) > 1 && mode == report.Plain {
			fmt.Fprintf(out, "%s:\n", path)
		}
		if err := report.Write(out, l, mode, detailed); err != nil {
			return err
		}
	}
	if len(listings) > 0 {
		if err := report.WriteJSON(out, listings...); err != nil {
			return err
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d files could not be inspected", failed, len(paths))
	}
	return nil
}
