// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package factory

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/icrar/chiles02/pkg/capacity"
	"github.com/icrar/chiles02/pkg/cloud"
	"github.com/icrar/chiles02/pkg/cmd/util"
	"github.com/icrar/chiles02/pkg/config"
	"github.com/icrar/chiles02/pkg/workset"
	"github.com/spf13/cobra"
)

// Factory defines the client-side construction factory.
type Factory interface {
	ClientGetter
	// Config returns the adjusted and validated configuration.
	Config() (*config.Config, error)
	ObjectStore() (workset.ObjectLister, error)
	Provisioner() (capacity.Provisioner, error)
	// ReadinessChannel returns the channel nodes report on, with its queue
	// url.
	ReadinessChannel(ctx context.Context) (capacity.ReadinessChannel, string, error)
}

// ClientGetter defines the client getter.
type ClientGetter interface {
	GetConfigFile() string
	GetLogLevel() string
	GetBucket() string
}

// ClientFlags specifies the parameters needed to construct the clients.
type ClientFlags struct {
	configFile string
	logLevel   string
	bucket     string
	region     string
	profile    string
}

var _ ClientGetter = &ClientFlags{}

// NewClientFlags creates new client flags.
func NewClientFlags() *ClientFlags {
	return &ClientFlags{}
}

// AddFlags receives a *cobra.Command reference and binds
// flags related to client construction to it.
func (c *ClientFlags) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.configFile, "config", "", "Path of the configuration file")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "",
		"log level (etc: debug|info|warn|error), overrides the configuration")
	cmd.PersistentFlags().StringVar(&c.bucket, "bucket", "", "S3 bucket, overrides storage.bucket")
	cmd.PersistentFlags().StringVar(&c.region, "region", "", "AWS region, overrides aws.region")
	cmd.PersistentFlags().StringVar(&c.profile, "profile", "", "AWS credentials profile, overrides aws.profile")
}

// GetConfigFile returns the configuration file path.
func (c *ClientFlags) GetConfigFile() string {
	return c.configFile
}

// GetLogLevel returns log level.
func (c *ClientFlags) GetLogLevel() string {
	return c.logLevel
}

// GetBucket returns the bucket override.
func (c *ClientFlags) GetBucket() string {
	return c.bucket
}

type factoryImpl struct {
	*ClientFlags

	mu   sync.Mutex
	cfg  *config.Config
	sess *session.Session
}

// NewFactory creates a client build factory.
func NewFactory(c *ClientFlags) Factory {
	return &factoryImpl{ClientFlags: c}
}

// Config loads the configuration file, if any, over the defaults and
// applies the flag overrides. It is loaded once.
func (f *factoryImpl) Config() (*config.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg != nil {
		return f.cfg, nil
	}
	cfg := config.NewDefaultConfig()
	if f.configFile != "" {
		if err := util.StrictDecodeFile(f.configFile, "chiles02", cfg); err != nil {
			return nil, err
		}
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.bucket != "" {
		cfg.Storage.Bucket = f.bucket
	}
	if f.region != "" {
		cfg.AWS.Region = f.region
	}
	if f.profile != "" {
		cfg.AWS.Profile = f.profile
	}
	if err := cfg.Adjust(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f.cfg = cfg
	return cfg, nil
}

func (f *factoryImpl) session() (*session.Session, *config.Config, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil {
		if f.sess, err = cfg.AWS.NewSession(); err != nil {
			return nil, nil, err
		}
	}
	return f.sess, cfg, nil
}

// ObjectStore returns the S3 bucket of the configuration.
func (f *factoryImpl) ObjectStore() (workset.ObjectLister, error) {
	sess, cfg, err := f.session()
	if err != nil {
		return nil, err
	}
	return cloud.NewS3Store(cloud.NewS3Client(sess, &cfg.AWS), cfg.Storage.Bucket), nil
}

// Provisioner returns the EC2 spot provisioner.
func (f *factoryImpl) Provisioner() (capacity.Provisioner, error) {
	sess, cfg, err := f.session()
	if err != nil {
		return nil, err
	}
	p := cloud.NewSpotProvisioner(cloud.NewEC2Client(sess))
	p.KeyName = cfg.Capacity.KeyName
	p.SecurityGroups = cfg.Capacity.SecurityGroups
	return p, nil
}

// ReadinessChannel returns the SQS queue of the configuration.
func (f *factoryImpl) ReadinessChannel(ctx context.Context) (capacity.ReadinessChannel, string, error) {
	sess, cfg, err := f.session()
	if err != nil {
		return nil, "", err
	}
	client := cloud.NewSQSClient(sess)
	url, err := cloud.ResolveQueueURL(ctx, client, cfg.Capacity.Queue)
	if err != nil {
		return nil, "", err
	}
	return cloud.NewSQSChannel(client, url), url, nil
}
