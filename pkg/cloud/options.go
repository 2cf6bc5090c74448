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

package cloud

import (
	"net/url"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/pingcap/errors"
)

const (
	// DefaultRegion is where the project's buckets and images live.
	DefaultRegion = "us-west-2"
	// DefaultProfile is the shared credentials profile used when no static
	// keys are configured.
	DefaultProfile = "aws-chiles02"

	maxRetries = 3
)

// Options contains the options to reach AWS.
type Options struct {
	Region          string `toml:"region" json:"region"`
	Profile         string `toml:"profile" json:"profile"`
	AccessKey       string `toml:"access-key" json:"access-key"`
	SecretAccessKey string `toml:"secret-access-key" json:"secret-access-key"`
	// Endpoint overrides the S3 endpoint, for S3 compatible stores.
	Endpoint       string `toml:"endpoint" json:"endpoint"`
	ForcePathStyle bool   `toml:"force-path-style" json:"force-path-style"`
}

// Adjust fills defaults and checks the options.
func (o *Options) Adjust() error {
	if o.Region == "" {
		o.Region = DefaultRegion
	}
	if o.AccessKey == "" && o.SecretAccessKey == "" && o.Profile == "" {
		o.Profile = DefaultProfile
	}
	if o.Endpoint != "" {
		u, err := url.Parse(o.Endpoint)
		if err != nil {
			return cerrors.WrapError(cerrors.ErrInvalidConfig, err, "aws endpoint")
		}
		if u.Scheme == "" || u.Host == "" {
			return cerrors.ErrInvalidConfig.GenWithStackByArgs("aws endpoint needs a scheme and a host")
		}
	}
	if o.AccessKey == "" && o.SecretAccessKey != "" {
		return cerrors.ErrMissingCredentials.GenWithStackByArgs("access-key not found")
	}
	if o.AccessKey != "" && o.SecretAccessKey == "" {
		return cerrors.ErrMissingCredentials.GenWithStackByArgs("secret-access-key not found")
	}
	return nil
}

func (o *Options) apply() *aws.Config {
	cfg := aws.NewConfig().
		WithMaxRetries(maxRetries).
		WithRegion(o.Region).
		WithS3ForcePathStyle(o.ForcePathStyle)
	if o.AccessKey != "" && o.SecretAccessKey != "" {
		cfg.WithCredentials(credentials.NewStaticCredentials(o.AccessKey, o.SecretAccessKey, ""))
	}
	return cfg
}

// NewSession creates a session and makes sure credentials resolve, so a
// missing profile fails before any remote call.
func (o *Options) NewSession() (*session.Session, error) {
	opts := session.Options{
		Config:            *o.apply(),
		SharedConfigState: session.SharedConfigEnable,
	}
	if o.AccessKey == "" {
		opts.Profile = o.Profile
	}
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrMissingCredentials, err, o.describe())
	}
	if _, err := sess.Config.Credentials.Get(); err != nil {
		return nil, cerrors.WrapError(cerrors.ErrMissingCredentials, err, o.describe())
	}
	return sess, nil
}

// S3Config returns the per client config of S3, honoring Endpoint.
func (o *Options) S3Config() *aws.Config {
	cfg := aws.NewConfig()
	if o.Endpoint != "" {
		cfg.WithEndpoint(o.Endpoint)
	}
	return cfg
}

func (o *Options) describe() string {
	if o.AccessKey != "" {
		return "static keys"
	}
	return "profile " + o.Profile
}

// errorCode returns the AWS error code of err, if any.
func errorCode(err error) string {
	if aerr, ok := errors.Cause(err).(awserr.Error); ok {
		return aerr.Code()
	}
	return ""
}
