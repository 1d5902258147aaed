package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"metro-assistant/internal/domain"
)

// fakeDynamo serves Query pages per sort-key prefix and records batch writes.
type fakeDynamo struct {
	mu sync.Mutex

	pages    map[string][][]map[string]types.AttributeValue
	queryErr map[string]error
	queries  []*dynamodb.QueryInput

	batches        []*dynamodb.BatchWriteItemInput
	unprocessedFor int // number of rounds that bounce the last request back
	batchErr       error
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)

	prefix := in.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS).Value
	if err := f.queryErr[prefix]; err != nil {
		return nil, err
	}
	page := 0
	if in.ExclusiveStartKey != nil {
		fmt.Sscanf(in.ExclusiveStartKey["page"].(*types.AttributeValueMemberN).Value, "%d", &page)
	}
	pages := f.pages[prefix]
	if page >= len(pages) {
		return &dynamodb.QueryOutput{}, nil
	}
	out := &dynamodb.QueryOutput{Items: pages[page]}
	if page+1 < len(pages) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"page": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", page+1)},
		}
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	f.batches = append(f.batches, in)
	if f.unprocessedFor > 0 {
		f.unprocessedFor--
		for table, reqs := range in.RequestItems {
			return &dynamodb.BatchWriteItemOutput{
				UnprocessedItems: map[string][]types.WriteRequest{table: reqs[len(reqs)-1:]},
			}, nil
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func mustNewClient(t *testing.T, db *fakeDynamo) *KnowledgeClient {
	t.Helper()
	c, err := New(db, "metro-knowledge")
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, " ")
	require.Error(t, err)
}

func TestLoadKnowledge_HappyPath(t *testing.T) {
	db := &fakeDynamo{pages: map[string][][]map[string]types.AttributeValue{
		skPrefixFAQ: {
			{faqItem(0, domain.FAQEntry{Question: "Are pets allowed?", Answer: "Small pets in carriers.", Tags: []string{"policy"}})},
			{faqItem(1, domain.FAQEntry{Question: "Is there parking?", Answer: "At Vanaz and PCMC."})},
		},
		skPrefixSynonym: {
			{synonymItem("Swargate", []string{"sbs", "swargate bus stand"})},
		},
		skPrefixSection: {
			{sectionItem("parking", json.RawMessage(`{"stations":["Vanaz","PCMC"]}`))},
		},
	}}
	c := mustNewClient(t, db)

	k, err := c.LoadKnowledge(context.Background())
	require.NoError(t, err)
	require.Len(t, k.FAQ, 2)
	require.Equal(t, "Are pets allowed?", k.FAQ[0].Question)
	require.Equal(t, []string{"policy"}, k.FAQ[0].Tags)
	require.Equal(t, "At Vanaz and PCMC.", k.FAQ[1].Answer)
	require.Equal(t, []string{"sbs", "swargate bus stand"}, k.Synonyms["Swargate"])
	require.JSONEq(t, `{"stations":["Vanaz","PCMC"]}`, string(k.Sections["parking"]))

	// Two FAQ pages plus one page each for synonyms and sections.
	require.Len(t, db.queries, 4)
	for _, q := range db.queries {
		require.Equal(t, "metro-knowledge", *q.TableName)
		require.Equal(t, "KB", q.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
	}
}

func TestLoadKnowledge_Empty(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	k, err := c.LoadKnowledge(context.Background())
	require.NoError(t, err)
	require.Empty(t, k.FAQ)
	require.Empty(t, k.Synonyms)
	require.Empty(t, k.Sections)
}

func TestLoadKnowledge_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: map[string]error{skPrefixSynonym: errors.New("throttled")}}
	c := mustNewClient(t, db)
	_, err := c.LoadKnowledge(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "throttled")
	require.Contains(t, err.Error(), "SYN#")
}

func TestLoadKnowledge_BadItems(t *testing.T) {
	cases := []struct {
		name   string
		prefix string
		item   map[string]types.AttributeValue
	}{
		{"faq missing answer", skPrefixFAQ, map[string]types.AttributeValue{
			"q": &types.AttributeValueMemberS{Value: "q"},
		}},
		{"synonym missing station", skPrefixSynonym, map[string]types.AttributeValue{}},
		{"section invalid json", skPrefixSection, map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: "x"},
			"body": &types.AttributeValueMemberS{Value: "{broken"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := &fakeDynamo{pages: map[string][][]map[string]types.AttributeValue{
				tc.prefix: {{tc.item}},
			}}
			_, err := mustNewClient(t, db).LoadKnowledge(context.Background())
			require.Error(t, err)
		})
	}
}

func TestSaveKnowledge_BatchesAndRoundTrips(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	k := domain.Knowledge{Synonyms: map[string][]string{"PCMC": {"pimpri"}}}
	for i := 0; i < 30; i++ {
		k.FAQ = append(k.FAQ, domain.FAQEntry{Question: fmt.Sprintf("q%d", i), Answer: "a"})
	}
	n, err := c.SaveKnowledge(context.Background(), k)
	require.NoError(t, err)
	require.Equal(t, 31, n)
	require.Len(t, db.batches, 2)
	require.Len(t, db.batches[0].RequestItems["metro-knowledge"], 25)
	require.Len(t, db.batches[1].RequestItems["metro-knowledge"], 6)

	first := db.batches[0].RequestItems["metro-knowledge"][0].PutRequest.Item
	require.Equal(t, "FAQ#00000", first["SK"].(*types.AttributeValueMemberS).Value)
	e, err := itemToFAQ(first)
	require.NoError(t, err)
	require.Equal(t, "q0", e.Question)
}

func TestSaveKnowledge_DeletesRecordsMissingFromNewSnapshot(t *testing.T) {
	db := &fakeDynamo{pages: map[string][][]map[string]types.AttributeValue{
		skPrefixFAQ: {{
			faqItem(0, domain.FAQEntry{Question: "old q0", Answer: "a"}),
			faqItem(1, domain.FAQEntry{Question: "old q1", Answer: "a"}),
			faqItem(2, domain.FAQEntry{Question: "old q2", Answer: "a"}),
		}},
		skPrefixSynonym: {{
			synonymItem("PCMC", []string{"pimpri"}),
			synonymItem("Nal Stop", []string{"nal"}),
		}},
	}}
	c := mustNewClient(t, db)

	n, err := c.SaveKnowledge(context.Background(), domain.Knowledge{
		FAQ:      []domain.FAQEntry{{Question: "new q0", Answer: "a"}},
		Synonyms: map[string][]string{"PCMC": {"pimpri", "pcmc chowk"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, db.batches, 1)

	reqs := db.batches[0].RequestItems["metro-knowledge"]
	require.Len(t, reqs, 5)
	var puts, deletes []string
	for _, r := range reqs {
		switch {
		case r.PutRequest != nil:
			require.Empty(t, deletes, "puts must precede deletes")
			puts = append(puts, r.PutRequest.Item["SK"].(*types.AttributeValueMemberS).Value)
		case r.DeleteRequest != nil:
			require.Equal(t, "KB", r.DeleteRequest.Key["PK"].(*types.AttributeValueMemberS).Value)
			deletes = append(deletes, r.DeleteRequest.Key["SK"].(*types.AttributeValueMemberS).Value)
		}
	}
	require.ElementsMatch(t, []string{"FAQ#00000", "SYN#PCMC"}, puts)
	require.ElementsMatch(t, []string{"FAQ#00001", "FAQ#00002", "SYN#Nal Stop"}, deletes)
}

func TestSaveKnowledge_ListErrorWritesNothing(t *testing.T) {
	db := &fakeDynamo{queryErr: map[string]error{skPrefixSection: errors.New("throttled")}}
	_, err := mustNewClient(t, db).SaveKnowledge(context.Background(), domain.Knowledge{
		FAQ: []domain.FAQEntry{{Question: "q", Answer: "a"}},
	})
	require.ErrorContains(t, err, "throttled")
	require.Empty(t, db.batches)
}

func TestSaveKnowledge_RetriesUnprocessed(t *testing.T) {
	db := &fakeDynamo{unprocessedFor: 2}
	c := mustNewClient(t, db)

	n, err := c.SaveKnowledge(context.Background(), domain.Knowledge{
		FAQ: []domain.FAQEntry{{Question: "q", Answer: "a"}, {Question: "q2", Answer: "a2"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, db.batches, 3)
	require.Len(t, db.batches[2].RequestItems["metro-knowledge"], 1)
}

func TestSaveKnowledge_GivesUpAfterRounds(t *testing.T) {
	db := &fakeDynamo{unprocessedFor: maxWriteRounds}
	c := mustNewClient(t, db)

	_, err := c.SaveKnowledge(context.Background(), domain.Knowledge{
		FAQ: []domain.FAQEntry{{Question: "q", Answer: "a"}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unprocessed")
}

func TestSaveKnowledge_RejectsInvalidSection(t *testing.T) {
	db := &fakeDynamo{}
	_, err := mustNewClient(t, db).SaveKnowledge(context.Background(), domain.Knowledge{
		Sections: map[string]json.RawMessage{"bad": json.RawMessage("{oops")},
	})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), `"bad"`))
	require.Empty(t, db.batches)
}

func TestSaveKnowledge_BatchError(t *testing.T) {
	db := &fakeDynamo{batchErr: errors.New("access denied")}
	_, err := mustNewClient(t, db).SaveKnowledge(context.Background(), domain.Knowledge{
		FAQ: []domain.FAQEntry{{Question: "q", Answer: "a"}},
	})
	require.ErrorContains(t, err, "access denied")
}
