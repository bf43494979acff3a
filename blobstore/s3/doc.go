// Package s3 stores filter blobs in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "filters-bucket", func(o *s3.Options) {
//	    o.Prefix = "easylist/"
//	    o.Region = "eu-central-1"
//	})
//
// Plain S3 has no compare-and-swap, so two publishers racing on CURRENT
// can lose an update. DDBCommitStore routes CURRENT through a DynamoDB
// conditional write instead and leaves every other blob in S3.
//
// # Features
//
//   - Range reads (GetObject with a Range header)
//   - Multipart streaming uploads through the s3 manager
//   - CRC32C checksums on whole-blob puts
//   - Automatic pagination for listing
package s3
