// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "tensorls",
		Short: "List the tensors stored in tensor container files",
		Long: `tensorls lists the tensors stored in safetensors files and in PyTorch
checkpoints written by torch.save, without loading tensor data.

Configuration is read from --config, or else from $HOME/.tensorls.yaml when
present. Environment variables prefixed with TENSORLS_ override the file,
and flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	goflags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(goflags)
	cmd.PersistentFlags().AddGoFlagSet(goflags)
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: $HOME/.tensorls.yaml)")

	cmd.AddCommand(newListCmd(&configFile))
	cmd.AddCommand(newVersionCmd())
	return cmd
}
