// Package minio stores filter blobs in MinIO or another S3-compatible
// object store through the MinIO Go client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "filters", "lists/")
//	eng, err := flatfilter.Open(ctx, store)
//
// Compiled lists are uploaded with Create, which streams into a single
// PutObject of unknown size. CURRENT is written with Put.
package minio
