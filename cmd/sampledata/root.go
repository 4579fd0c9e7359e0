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
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	sampledata "github.com/elastic/go-sampledata"
	"github.com/elastic/go-sampledata/job"
)

const (
	hostFlag        = "host"
	portFlag        = "port"
	usernameFlag    = "username"
	passwordFlag    = "password"
	schemeFlag      = "scheme"
	insecureFlag    = "insecure"
	configDirFlag   = "config-dir"
	logLevelFlag    = "log-level"
	compressionFlag = "compression-level"
	concurrencyFlag = "max-concurrent-indices"
)

func rootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SAMPLE_DATA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "sampledata",
		SilenceUsage: true,
		Short:        "Generate sample data and maintain sample data indices",
	}
	flags := cmd.PersistentFlags()
	flags.String(hostFlag, "localhost", "The hostname of the cluster, without the scheme")
	flags.Int(portFlag, 9200, "The port the cluster listens on")
	flags.String(usernameFlag, "", "The username of a user with CRUD permissions")
	flags.String(passwordFlag, "", "The password of a user with CRUD permissions")
	flags.String(schemeFlag, "https", "The scheme used to connect to the cluster")
	flags.Bool(insecureFlag, true, "Skip verification of the cluster's certificate")
	flags.String(configDirFlag, "config", "The directory job configs are read from")
	flags.String(logLevelFlag, "info", "The minimum level of log messages")
	flags.Int(compressionFlag, 0, "The gzip compression level of bulk requests, from -1 to 9")
	flags.Int(concurrencyFlag, 4, "The maximum number of indices filled concurrently")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		jobCmd(v, "startup", "Create and fill sample data indices and start their plugins", (*job.Runner).Startup),
		jobCmd(v, "refresh", "Delete expired sample data indices and fill new ones", (*job.Runner).Refresh),
		generateCmd(v),
	)
	return cmd
}

func jobCmd(v *viper.Viper, use, short string, run func(*job.Runner, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(v.GetString(logLevelFlag))
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := newClient(v)
			if err != nil {
				return err
			}
			runner, err := job.NewRunner(client, job.RunnerConfig{
				ConfigDir:            v.GetString(configDirFlag),
				MaxConcurrentIndices: v.GetInt(concurrencyFlag),
				Ingest: sampledata.Config{
					Logger:           logger,
					CompressionLevel: v.GetInt(compressionFlag),
				},
			})
			if err != nil {
				return err
			}
			if err := run(runner, cmd.Context()); err != nil {
				logger.Error(use+" job failed", zap.Error(err))
				return err
			}
			logger.Info(use + " job completed")
			return nil
		},
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func newClient(v *viper.Viper) (*elasticsearch.Client, error) {
	host := v.GetString(hostFlag)
	if host == "" {
		return nil, fmt.Errorf("%w: host is required", sampledata.ErrConfiguration)
	}
	address := v.GetString(schemeFlag) + "://" + net.JoinHostPort(host, strconv.Itoa(v.GetInt(portFlag)))

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: v.GetBool(insecureFlag)}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{address},
		Username:  v.GetString(usernameFlag),
		Password:  v.GetString(passwordFlag),
		Transport: transport,
	})
}
