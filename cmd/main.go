package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"metro-assistant/handler"
	"metro-assistant/internal/integrations/openai"
	"metro-assistant/internal/integrations/paramstore"
	"metro-assistant/internal/integrations/whatsapp"
	"metro-assistant/internal/knowledge"
	"metro-assistant/internal/replies"
	"metro-assistant/internal/repository"
	"metro-assistant/internal/router"
)

func main() {
	ctx := context.Background()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// ---- Configuration (read only here) ----
	knowledgeTable := mustEnv("KNOWLEDGE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	phoneNumberID := mustEnv("WHATSAPP_PHONE_NUMBER_ID")
	knowledgeRefresh := envDuration("KNOWLEDGE_REFRESH", 5*time.Minute)
	sendRPS := envFloat("WHATSAPP_SEND_RPS", 20)
	tzName := envString("TIMEZONE", "Asia/Kolkata")

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		slog.Error("invalid TIMEZONE", "timezone", tzName, "err", err)
		os.Exit(1)
	}
	routerCfg := router.Config{
		DedupCapacity:     envInt("DEDUP_CAPACITY", 100),
		DedupRecentWindow: envDuration("DEDUP_RECENT_WINDOW", 5*time.Second),
		DedupHorizon:      envDuration("DEDUP_HORIZON", 30*time.Second),
		SessionCap:        envInt("SESSION_CAP", 1000),
		SessionRetention:  envDuration("SESSION_RETENTION", 30*24*time.Hour),
		ContextMaxEntries: envInt("CONTEXT_MAX_ENTRIES", 5),
		ContextTTL:        envDuration("CONTEXT_TTL", time.Hour),
		DelegateTimeout:   envDuration("DELEGATE_TIMEOUT", 10*time.Second),
		Location:          loc,
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	knowledgeClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), knowledgeTable)
	if err != nil {
		slog.Error("failed to create knowledge client", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	whatsappClient, err := whatsapp.NewClient(ssmClient, paramPrefix, phoneNumberID, whatsapp.WithSendRate(sendRPS))
	if err != nil {
		slog.Error("failed to create WhatsApp client", "err", err)
		os.Exit(1)
	}

	// ---- Router ----
	provider, err := knowledge.NewProvider(knowledgeClient, knowledgeRefresh)
	if err != nil {
		slog.Error("failed to create knowledge provider", "err", err)
		os.Exit(1)
	}
	catalog, err := replies.Default()
	if err != nil {
		slog.Error("failed to load reply catalog", "err", err)
		os.Exit(1)
	}
	r, err := router.New(openaiClient, provider, catalog, routerCfg)
	if err != nil {
		slog.Error("failed to create router", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(r, whatsappClient)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
