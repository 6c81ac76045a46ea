// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package aws

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/go-logr/logr"
)

// roleSessionName identifies ariel's sessions in CloudTrail.
const roleSessionName = "ariel"

var _ Client = (*RealClient)(nil)

// RealClient is the production implementation of Client, backed by the AWS
// SDK v2. The master role is assumed once and the resulting credentials are
// reused by every service client.
type RealClient struct {
	log       logr.Logger
	config    ClientConfig
	stsClient *sts.Client

	// masterCfg is the SDK config carrying the assumed-role credentials,
	// populated on first use.
	masterCfg *aws.Config
}

// NewRealClient creates a RealClient. Base credentials come from the SDK
// default credential chain; the master role is assumed lazily on the first
// API call.
func NewRealClient(ctx context.Context, log logr.Logger, cfg ClientConfig) (*RealClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return &RealClient{
		log:       log,
		config:    cfg,
		stsClient: sts.NewFromConfig(awsCfg),
	}, nil
}

// master returns the SDK config for the master account, performing the
// AssumeRole exchange on first call.
func (c *RealClient) master(ctx context.Context) (aws.Config, error) {
	if c.masterCfg != nil {
		return *c.masterCfg, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.config.Region)}
	if c.config.MasterRole != "" {
		result, err := c.stsClient.AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(c.config.MasterRole),
			RoleSessionName: aws.String(roleSessionName),
		})
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to assume role %s: %w", c.config.MasterRole, err)
		}
		c.log.V(1).Info("assumed master role", "role", c.config.MasterRole)
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			*result.Credentials.AccessKeyId,
			*result.Credentials.SecretAccessKey,
			*result.Credentials.SessionToken,
		)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	c.masterCfg = &cfg
	return cfg, nil
}

// ReadObject fetches an s3:// URI or local file (optionally file://).
func (c *RealClient) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	if bucket, key, ok := splitS3URI(uri); ok {
		cfg, err := c.master(ctx)
		if err != nil {
			return nil, err
		}
		return readS3Object(ctx, s3.NewFromConfig(cfg), bucket, key)
	}
	return os.ReadFile(strings.TrimPrefix(uri, "file://"))
}

// WriteObject stores data at an s3:// URI or local file path. Local writes
// go through a temp file and rename so readers never see partial content.
func (c *RealClient) WriteObject(ctx context.Context, uri string, data []byte) error {
	if bucket, key, ok := splitS3URI(uri); ok {
		cfg, err := c.master(ctx)
		if err != nil {
			return err
		}
		_, err = s3.NewFromConfig(cfg).PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   strings.NewReader(string(data)),
		})
		if err != nil {
			return fmt.Errorf("failed to write s3://%s/%s: %w", bucket, key, err)
		}
		return nil
	}

	path := strings.TrimPrefix(uri, "file://")
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// splitS3URI splits s3://bucket/key into its parts.
func splitS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" {
		return "", "", false
	}
	return bucket, key, true
}

func readS3Object(ctx context.Context, client *s3.Client, bucket, key string) ([]byte, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
