package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"metro-assistant/internal/domain"
)

const (
	pkKnowledge     = "KB"
	skPrefixFAQ     = "FAQ#"
	skPrefixSynonym = "SYN#"
	skPrefixSection = "SECTION#"

	maxBatchWrite  = 25
	maxWriteRounds = 5
)

// dynamodbAPI is the minimal DynamoDB interface required by KnowledgeClient.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// KnowledgeClient stores the assistant's reference data in one partition:
// FAQ entries, station synonyms and free-form knowledge sections.
type KnowledgeClient struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new KnowledgeClient.
func New(api dynamodbAPI, tableName string) (*KnowledgeClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &KnowledgeClient{api: api, tableName: tableName}, nil
}

// LoadKnowledge reads the full snapshot. The three record kinds are queried
// concurrently.
func (c *KnowledgeClient) LoadKnowledge(ctx context.Context) (domain.Knowledge, error) {
	var faqItems, synItems, sectionItems []map[string]types.AttributeValue

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		faqItems, err = c.queryPrefix(gctx, skPrefixFAQ)
		return err
	})
	g.Go(func() (err error) {
		synItems, err = c.queryPrefix(gctx, skPrefixSynonym)
		return err
	})
	g.Go(func() (err error) {
		sectionItems, err = c.queryPrefix(gctx, skPrefixSection)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Knowledge{}, err
	}

	k := domain.Knowledge{
		FAQ:      make([]domain.FAQEntry, 0, len(faqItems)),
		Synonyms: make(map[string][]string, len(synItems)),
		Sections: make(map[string]json.RawMessage, len(sectionItems)),
	}
	for _, item := range faqItems {
		e, err := itemToFAQ(item)
		if err != nil {
			return domain.Knowledge{}, fmt.Errorf("repository: LoadKnowledge faq: %w", err)
		}
		k.FAQ = append(k.FAQ, e)
	}
	for _, item := range synItems {
		station, err := strAttr(item, "station")
		if err != nil {
			return domain.Knowledge{}, fmt.Errorf("repository: LoadKnowledge synonyms: %w", err)
		}
		k.Synonyms[station] = listAttr(item, "synonyms")
	}
	for _, item := range sectionItems {
		name, body, err := itemToSection(item)
		if err != nil {
			return domain.Knowledge{}, fmt.Errorf("repository: LoadKnowledge sections: %w", err)
		}
		k.Sections[name] = body
	}
	return k, nil
}

// queryPrefix returns every item in the knowledge partition whose sort key
// starts with prefix, in sort-key order.
func (c *KnowledgeClient) queryPrefix(ctx context.Context, prefix string) ([]map[string]types.AttributeValue, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: pkKnowledge},
				":prefix": &types.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: query %s: %w", prefix, err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

// SaveKnowledge replaces the partition's contents with k and returns the
// number of items written. New records are written first; records whose keys
// are absent from k (a shorter FAQ, a dropped synonym or section) are deleted
// afterwards so readers never see an empty partition.
func (c *KnowledgeClient) SaveKnowledge(ctx context.Context, k domain.Knowledge) (int, error) {
	items := make([]map[string]types.AttributeValue, 0, len(k.FAQ)+len(k.Synonyms)+len(k.Sections))
	for i, e := range k.FAQ {
		items = append(items, faqItem(i, e))
	}
	for station, syns := range k.Synonyms {
		items = append(items, synonymItem(station, syns))
	}
	for name, body := range k.Sections {
		if !json.Valid(body) {
			return 0, fmt.Errorf("repository: SaveKnowledge: section %q is not valid JSON", name)
		}
		items = append(items, sectionItem(name, body))
	}

	existing, err := c.existingKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("repository: SaveKnowledge: %w", err)
	}

	keep := make(map[string]struct{}, len(items))
	reqs := make([]types.WriteRequest, 0, len(items)+len(existing))
	for _, item := range items {
		keep[item["SK"].(*types.AttributeValueMemberS).Value] = struct{}{}
		reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	for _, sk := range existing {
		if _, ok := keep[sk]; ok {
			continue
		}
		reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: itemKey(sk)}})
	}

	for start := 0; start < len(reqs); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(reqs))
		if err := c.writeBatch(ctx, reqs[start:end]); err != nil {
			return min(start, len(items)), err
		}
	}
	return len(items), nil
}

// existingKeys lists the sort keys currently stored in the knowledge partition.
func (c *KnowledgeClient) existingKeys(ctx context.Context) ([]string, error) {
	prefixes := []string{skPrefixFAQ, skPrefixSynonym, skPrefixSection}
	found := make([][]map[string]types.AttributeValue, len(prefixes))

	g, gctx := errgroup.WithContext(ctx)
	for i, prefix := range prefixes {
		i, prefix := i, prefix
		g.Go(func() (err error) {
			found[i], err = c.queryPrefix(gctx, prefix)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var keys []string
	for _, items := range found {
		for _, item := range items {
			sk, err := strAttr(item, "SK")
			if err != nil {
				return nil, err
			}
			keys = append(keys, sk)
		}
	}
	return keys, nil
}

func (c *KnowledgeClient) writeBatch(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{c.tableName: reqs}

	for round := 0; round < maxWriteRounds; round++ {
		out, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("repository: SaveKnowledge batch write: %w", err)
		}
		if out == nil || len(out.UnprocessedItems[c.tableName]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("repository: SaveKnowledge: %d items still unprocessed", len(pending[c.tableName]))
}

func itemKey(sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkKnowledge},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func faqItem(i int, e domain.FAQEntry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: pkKnowledge},
		"SK":       &types.AttributeValueMemberS{Value: fmt.Sprintf("%s%05d", skPrefixFAQ, i)},
		"q":        &types.AttributeValueMemberS{Value: e.Question},
		"a":        &types.AttributeValueMemberS{Value: e.Answer},
		"tags":     stringList(e.Tags),
		"evidence": stringList(e.Evidence),
	}
}

func synonymItem(station string, synonyms []string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: pkKnowledge},
		"SK":       &types.AttributeValueMemberS{Value: skPrefixSynonym + station},
		"station":  &types.AttributeValueMemberS{Value: station},
		"synonyms": stringList(synonyms),
	}
}

func sectionItem(name string, body json.RawMessage) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":   &types.AttributeValueMemberS{Value: pkKnowledge},
		"SK":   &types.AttributeValueMemberS{Value: skPrefixSection + name},
		"name": &types.AttributeValueMemberS{Value: name},
		"body": &types.AttributeValueMemberS{Value: string(body)},
	}
}

func itemToFAQ(item map[string]types.AttributeValue) (domain.FAQEntry, error) {
	q, err := strAttr(item, "q")
	if err != nil {
		return domain.FAQEntry{}, err
	}
	a, err := strAttr(item, "a")
	if err != nil {
		return domain.FAQEntry{}, err
	}
	return domain.FAQEntry{
		Question: q,
		Answer:   a,
		Tags:     listAttr(item, "tags"),
		Evidence: listAttr(item, "evidence"),
	}, nil
}

func itemToSection(item map[string]types.AttributeValue) (string, json.RawMessage, error) {
	name, err := strAttr(item, "name")
	if err != nil {
		return "", nil, err
	}
	body, err := strAttr(item, "body")
	if err != nil {
		return "", nil, err
	}
	if !json.Valid([]byte(body)) {
		return "", nil, fmt.Errorf("repository: section %q body is not valid JSON", name)
	}
	return name, json.RawMessage(body), nil
}

func stringList(values []string) types.AttributeValue {
	l := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		l = append(l, &types.AttributeValueMemberS{Value: v})
	}
	return &types.AttributeValueMemberL{Value: l}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

// listAttr reads a list of strings, skipping non-string members. A missing
// attribute yields nil.
func listAttr(item map[string]types.AttributeValue, key string) []string {
	v, ok := item[key].(*types.AttributeValueMemberL)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v.Value))
	for _, m := range v.Value {
		if s, ok := m.(*types.AttributeValueMemberS); ok {
			out = append(out, s.Value)
		}
	}
	return out
}
