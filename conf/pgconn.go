package conf

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// GetPgConnStrFromEnv prefers DATABASE_URL and otherwise assembles a DSN
// from POSTGRES_* variables. Outside localhost the password is read from
// AWS Secrets Manager.
func GetPgConnStrFromEnv() (string, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor POSTGRES_HOST is set")
	}
	var pw string
	if host == "localhost" || os.Getenv("POSTGRES_PASSWORD_SECRET_NAME") == "" {
		pw = os.Getenv("POSTGRES_PW")
	} else {
		secretValue, err := getSecretFromAWS(os.Getenv("POSTGRES_PASSWORD_SECRET_NAME"))
		if err != nil {
			return "", fmt.Errorf("failed to get postgres password from AWS: %w", err)
		}
		var secret struct {
			Password string `json:"password"`
		}
		if err := json.Unmarshal([]byte(secretValue), &secret); err != nil {
			return "", fmt.Errorf("failed to parse postgres password secret: %w", err)
		}
		pw = secret.Password
	}
	ssl := os.Getenv("POSTGRES_SSLMODE")
	if ssl == "" {
		ssl = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, envOr("POSTGRES_PORT", "5432"), os.Getenv("POSTGRES_USER"),
		pw, os.Getenv("POSTGRES_DB"), ssl), nil
}

func getSecretFromAWS(secretName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}
	svc := secretsmanager.NewFromConfig(cfg)
	result, err := svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(result.SecretString), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
