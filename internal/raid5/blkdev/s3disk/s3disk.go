// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package s3disk backs the drive array with an S3 bucket, one object per
// physical sector. It uses aws api v1. The point is not performance but
// running the same volume code against a remote backend, e.g. for disposable
// test clusters where local block storage is not available.
package s3disk

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"golang.org/x/net/http2"

	"github.com/asch/raid5/internal/raid5/blkdev"
)

const (
	// Format string for the object key of one sector. The drive index is
	// the object prefix, so each drive gets its own prefix and s3 rate
	// limiting, which is applied per prefix, hits drives independently.
	keyFmt = "%08x/%08x"
)

// S3Disk implements SectorReadWriter on top of an S3 bucket. A sector that
// was never written reads back as zeroes, matching a fresh local drive.
type S3Disk struct {
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	client     *s3.S3
	bucket     string
	devices    int
	sectors    int
}

// Options to use in New() function due to high number of parameters. There is
// lower chance of ordering mistake with named parameters.
type Options struct {
	Remote    string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Devices   int
	Sectors   int
}

func New(o Options) (*S3Disk, error) {
	s := &S3Disk{
		bucket:  o.Bucket,
		devices: o.Devices,
		sectors: o.Sectors,
	}

	// Connection parameters follow the AWS recommendation for their
	// network. Sector objects are tiny, so the transfer managers run with
	// concurrency 1 and the gain comes from connection reuse.
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			DualStack: true,
			Timeout:   5 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: 5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	http2.ConfigureTransport(tr)

	sess, err := session.NewSession(&aws.Config{
		Endpoint:                      aws.String(o.Remote),
		Region:                        aws.String(o.Region),
		Credentials:                   credentials.NewStaticCredentials(o.AccessKey, o.SecretKey, ""),
		S3ForcePathStyle:              aws.Bool(true),
		S3DisableContentMD5Validation: aws.Bool(true),
		HTTPClient:                    &http.Client{Transport: tr},
	})
	if err != nil {
		return nil, err
	}

	s.client = s3.New(sess)
	s.uploader = s3manager.NewUploader(sess)
	s.downloader = s3manager.NewDownloader(sess)
	s.uploader.Concurrency = 1
	s.downloader.Concurrency = 1

	err = s.makeBucketExist()

	return s, err
}

// Read transfers cnt sectors from the bucket into buf and returns the number
// of sectors transferred. Missing objects read as zero sectors.
func (s *S3Disk) Read(drive, sector int, buf []byte, cnt int) int {
	for i := 0; i < cnt; i++ {
		if !s.rangeOK(drive, sector+i) {
			return i
		}

		dst := buf[i*blkdev.SectorSize : (i+1)*blkdev.SectorSize]
		b := aws.NewWriteAtBuffer(dst)
		_, err := s.downloader.Download(b, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(encode(drive, sector+i)),
		})

		if isNoSuchKey(err) {
			for j := range dst {
				dst[j] = 0
			}
			continue
		}
		if err != nil {
			return i
		}
	}

	return cnt
}

// Write transfers cnt sectors from buf into the bucket and returns the number
// of sectors transferred.
func (s *S3Disk) Write(drive, sector int, buf []byte, cnt int) int {
	for i := 0; i < cnt; i++ {
		if !s.rangeOK(drive, sector+i) {
			return i
		}

		_, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(encode(drive, sector+i)),
			Body:   bytes.NewReader(buf[i*blkdev.SectorSize : (i+1)*blkdev.SectorSize]),
		})
		if err != nil {
			return i
		}
	}

	return cnt
}

// Check whether bucket exist and if not, create it and wait until it appears.
func (s *S3Disk) makeBucketExist() error {
	_, err := s.client.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(s.bucket)})

	if err != nil {
		_, err = s.client.CreateBucket(&s3.CreateBucketInput{
			Bucket: aws.String(s.bucket)})

		if err == nil {
			err = s.client.WaitUntilBucketExists(&s3.HeadBucketInput{
				Bucket: aws.String(s.bucket)})
		}
	}

	return err
}

func (s *S3Disk) rangeOK(drive, sector int) bool {
	return drive >= 0 && drive < s.devices && sector >= 0 && sector < s.sectors
}

func isNoSuchKey(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == s3.ErrCodeNoSuchKey
	}

	return false
}

func encode(drive, sector int) string {
	return fmt.Sprintf(keyFmt, drive, sector)
}
