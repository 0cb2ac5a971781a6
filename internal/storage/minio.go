package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"interview-coach/internal/config"
	"interview-coach/internal/constants"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ResumeArchive 简历归档接口，上传的原件和提取后的文本按会话保存
type ResumeArchive interface {
	ArchiveResumeFile(ctx context.Context, sessionID, fileExt string, reader io.Reader, fileSize int64) (string, error)
	ArchiveResumeText(ctx context.Context, sessionID string, text string) (string, error)
}

var _ ResumeArchive = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger *log.Logger
}

// NewMinIO 创建MinIO客户端并确保归档桶存在
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint 不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.ResumeBucket
	if bucket == "" {
		bucket = "interview-resumes"
	}

	m := &MinIO{client: client, cfg: cfg, bucket: bucket, logger: logger}

	if err := m.ensureBucketExists(context.Background(), bucket, cfg.Location); err != nil {
		return nil, err
	}
	if cfg.ResumeExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), bucket, "expire-resumes", cfg.ResumeExpireDays); err != nil {
			logger.Printf("[MinIO] 设置生命周期规则失败: %v", err)
		}
	}

	logger.Printf("[MinIO] 客户端初始化成功, endpoint=%s, bucket=%s", cfg.Endpoint, bucket)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	m.logger.Printf("[MinIO] 已创建存储桶 %s", bucketName)
	return nil
}

// setupBucketLifecycle 为指定存储桶设置过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, cfg)
}

// ResumeFileObjectName 原件对象名，例如 resume/{sessionID}/original.pdf
func ResumeFileObjectName(sessionID, fileExt string) string {
	return fmt.Sprintf("%s/%s/original%s", constants.ResumeObjectPrefix, sessionID, strings.ToLower(fileExt))
}

// ResumeTextObjectName 提取文本对象名
func ResumeTextObjectName(sessionID string) string {
	return fmt.Sprintf("%s/%s/extracted.txt", constants.ResumeObjectPrefix, sessionID)
}

// ArchiveResumeFile 上传简历原件，返回对象名
func (m *MinIO) ArchiveResumeFile(ctx context.Context, sessionID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	objectName := ResumeFileObjectName(sessionID, fileExt)
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType:  getContentType(fileExt),
		UserMetadata: map[string]string{"session-id": sessionID},
	})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	if m.cfg.EnableTestLogging {
		m.logger.Printf("[MinIO] 已归档简历原件 %s (%d bytes)", objectName, fileSize)
	}
	return objectName, nil
}

// ArchiveResumeText 上传提取后的简历文本，返回对象名
func (m *MinIO) ArchiveResumeText(ctx context.Context, sessionID string, text string) (string, error) {
	objectName := ResumeTextObjectName(sessionID)
	_, err := m.client.PutObject(ctx, m.bucket, objectName, strings.NewReader(text), int64(len(text)), minio.PutObjectOptions{
		ContentType:  "text/plain; charset=utf-8",
		UserMetadata: map[string]string{"session-id": sessionID, "extractor-version": constants.ExtractorVersion},
	})
	if err != nil {
		return "", fmt.Errorf("上传简历文本 %s 失败: %w", objectName, err)
	}
	return objectName, nil
}

func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
