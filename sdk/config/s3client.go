// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/gabriel-vasile/mimetype"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client serves the upstream file routes straight from an S3 bucket, so the
// relay can front object storage without an intermediate file service.
type S3Client struct {
	s3     *s3.Client
	bucket string
	prefix string
}

func NewS3Client(ctx context.Context, cfgCreds S3Config) (*S3Client, error) {
	if cfgCreds.Bucket == "" {
		return nil, errors.New("missing s3 bucket")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfgCreds.Region),
	}
	// senza chiavi esplicite si usa la catena di default (env, profilo, IMDS)
	if cfgCreds.AccessKey != "" {
		creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfgCreds.AccessKey,
			cfgCreds.SecretKey,
			cfgCreds.AccessToken,
		))
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := func(o *s3.Options) {
		if cfgCreds.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfgCreds.EndpointURL)
			o.UsePathStyle = true // necessario per molti S3-compat
		}
	}

	return &S3Client{
		s3:     s3.NewFromConfig(cfg, s3Options),
		bucket: cfgCreds.Bucket,
		prefix: cfgCreds.Prefix,
	}, nil
}

// Key maps a relay filename onto the object key.
func (c *S3Client) Key(filename string) string {
	return c.prefix + filename
}

func (c *S3Client) Send(ctx context.Context, req UpstreamRequest) (*UpstreamResponse, error) {
	switch {
	case req.Method == http.MethodGet && req.Path == PathDownload:
		return c.download(ctx, req.Query.Get("filename"))
	case req.Method == http.MethodPost && req.Path == PathUploadStream:
		return c.uploadStream(ctx, req.Header.Get("filename"), req.Body)
	case req.Method == http.MethodPost && req.Path == PathUploadMultipart:
		return c.uploadMultipart(ctx, req.Header.Get("Content-Type"), req.Body)
	case req.Method == http.MethodGet && req.Path == PathPing:
		if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
			return c.errorResponse(err)
		}
		return textResponse(http.StatusOK, "s3://"+c.bucket), nil
	default:
		return textResponse(http.StatusNotFound, fmt.Sprintf("no route for %s %s", req.Method, req.Path)), nil
	}
}

func (c *S3Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.Send(ctx, UpstreamRequest{Method: http.MethodGet, Path: PathPing})
	if err != nil {
		return "", err
	}
	defer resp.Close()

	b, rerr := io.ReadAll(resp.Body)
	if !resp.OK() {
		return string(b), fmt.Errorf("s3 responded with: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return string(b), rerr
}

/* -------------------- DOWNLOAD -------------------- */

func (c *S3Client) download(ctx context.Context, filename string) (*UpstreamResponse, error) {
	if filename == "" {
		return textResponse(http.StatusBadRequest, "missing filename"), nil
	}
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.Key(filename)),
	})
	if err != nil {
		return c.errorResponse(err)
	}

	header := http.Header{}
	if out.ContentLength != nil {
		header.Set("Content-Length", strconv.FormatInt(aws.ToInt64(out.ContentLength), 10))
	}
	if ct := aws.ToString(out.ContentType); ct != "" {
		header.Set("Content-Type", ct)
	}
	if etag := aws.ToString(out.ETag); etag != "" {
		header.Set("ETag", etag)
	}
	return &UpstreamResponse{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       NewBody(out.Body, nil),
	}, nil
}

/* -------------------- UPLOAD -------------------- */

// uploadStream feeds the body to the multipart uploader: memory stays at one
// part buffer whatever the object size.
func (c *S3Client) uploadStream(ctx context.Context, filename string, body RequestBody) (*UpstreamResponse, error) {
	if filename == "" {
		return textResponse(http.StatusBadRequest, "missing filename header"), nil
	}
	var reader io.Reader = body.Stream
	if body.Payload != nil {
		reader = bytes.NewReader(body.Payload)
	}
	if reader == nil {
		reader = bytes.NewReader(nil)
	}

	uploader := manager.NewUploader(c.s3, func(u *manager.Uploader) {
		u.PartSize = manager.MinUploadPartSize
		u.Concurrency = 1
	})
	out, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.Key(filename)),
		Body:        reader,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return c.errorResponse(err)
	}
	return textResponse(http.StatusOK, out.Location), nil
}

func (c *S3Client) uploadMultipart(ctx context.Context, contentType string, body RequestBody) (*UpstreamResponse, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["boundary"] == "" {
		return textResponse(http.StatusBadRequest, "invalid multipart content type"), nil
	}
	var reader io.Reader = body.Stream
	if body.Payload != nil {
		reader = bytes.NewReader(body.Payload)
	}
	if reader == nil {
		return textResponse(http.StatusBadRequest, "empty multipart body"), nil
	}

	mr := multipart.NewReader(reader, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return textResponse(http.StatusBadRequest, "missing file part"), nil
		}
		if err != nil {
			return textResponse(http.StatusBadRequest, "malformed multipart body"), nil
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		filename := PartFilename(part)
		if filename == "" {
			return textResponse(http.StatusBadRequest, "missing filename"), nil
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("failed to read multipart file: %w", err)
		}

		out, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(c.Key(filename)),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(mimetype.Detect(data).String()),
		})
		if err != nil {
			return c.errorResponse(err)
		}
		return textResponse(http.StatusOK, aws.ToString(out.ETag)), nil
	}
}

// PartFilename returns the raw filename parameter of a multipart part.
// Part.FileName applies filepath.Base, which would mangle opaque names.
func PartFilename(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return part.FileName()
	}
	return params["filename"]
}

/* -------------------- helpers -------------------- */

// errorResponse turns API errors into upstream responses; transport errors
// are returned as-is.
func (c *S3Client) errorResponse(err error) (*UpstreamResponse, error) {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return textResponse(http.StatusNotFound, "file not found"), nil
	}
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return textResponse(http.StatusNotFound, "bucket not found"), nil
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return textResponse(respErr.HTTPStatusCode(), respErr.Error()), nil
	}
	return nil, fmt.Errorf("s3 request failed: %w", err)
}

func textResponse(status int, msg string) *UpstreamResponse {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(msg)))
	return &UpstreamResponse{
		StatusCode: status,
		Header:     header,
		Body:       NewBody(io.NopCloser(strings.NewReader(msg)), nil),
	}
}
