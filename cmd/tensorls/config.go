// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/nlpodyssey/tensorinspect"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
)

const (
	configFileName = ".tensorls"
	configFileType = "yaml"
	envPrefix      = "TENSORLS"

	cfgKeyDetailed        = "detailed"
	cfgKeyFormat          = "format"
	cfgKeyHeaderSizeLimit = "header_size_limit"
	cfgKeyCheckStorages   = "check_storages"
)

// loadConfig reads the configuration with the following precedence:
// flags, TENSORLS_* environment variables, config file, defaults.
//
// An explicit configFile must exist. Without it, $HOME/.tensorls.yaml is
// read when present.
func loadConfig(configFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDetailed, false)
	v.SetDefault(cfgKeyFormat, "plain")
	v.SetDefault(cfgKeyHeaderSizeLimit, tensorinspect.DefaultHeaderSizeLimit)
	v.SetDefault(cfgKeyCheckStorages, false)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	for key, name := range map[string]string{
		cfgKeyDetailed:        "detailed",
		cfgKeyFormat:          "format",
		cfgKeyHeaderSizeLimit: "header-size-limit",
		cfgKeyCheckStorages:   "check-storages",
	} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "failed to bind flag --%s", name)
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			klog.V(1).Infof("no home directory, skipping config file: %v", err)
			return v, nil
		}
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, errors.Wrap(err, "failed to read config")
	}
	klog.V(1).Infof("using config file %q", v.ConfigFileUsed())
	return v, nil
}

// inspectOptions converts the configuration into tensorinspect options.
func inspectOptions(v *viper.Viper) []tensorinspect.Option {
	return []tensorinspect.Option{
		tensorinspect.WithHeaderSizeLimit(v.GetInt(cfgKeyHeaderSizeLimit)),
		tensorinspect.WithStorageCheck(v.GetBool(cfgKeyCheckStorages)),
	}
}
