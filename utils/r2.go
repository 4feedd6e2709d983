// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var r2Client *s3.Client
var r2Bucket string

// InitR2 configures the Cloudflare R2 client used for archiving resolution
// evidence. R2 is optional: with no credentials configured the archive is
// simply disabled and resolutions proceed without snapshots.
func InitR2() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")

	if accountID == "" || accessKeyID == "" || accessKeySecret == "" || r2Bucket == "" {
		log.Println("⚠️  R2 not configured — evidence archiving disabled")
		return nil
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// ArchiveEvidence uploads the evidence and reasoning that decided a take to
// R2 under evidence/<takeID>.txt. Best-effort: the resolution is already
// committed by the time this runs, so failures are logged and swallowed.
func ArchiveEvidence(ctx context.Context, takeID, evidence, reasoning string) {
	if r2Client == nil {
		return
	}

	body := fmt.Sprintf("TAKE: %s\n\n--- EVIDENCE ---\n%s\n\n--- REASONING ---\n%s\n", takeID, evidence, reasoning)
	key := "evidence/" + takeID + ".txt"

	_, err := r2Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(body)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		log.Printf("[ARCHIVE] ⚠️ Failed to archive evidence for take %s: %v", takeID, err)
		return
	}
	log.Printf("[ARCHIVE] 🗄️ Evidence archived: %s", key)
}
