package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaBuilder(t *testing.T) {
	s := NewSchema("createTask", "Create a task").
		AddParam("title", "string", "Task title", true).
		AddParamWithEnum("priority", "string", "Priority", []string{"low", "high"}, false).
		Build()

	assert.Equal(t, []string{"title"}, s.Required())
	props := s.Properties()
	require.Contains(t, props, "priority")
	assert.Equal(t, []string{"low", "high"}, props["priority"].(map[string]interface{})["enum"])
	assert.Equal(t, false, s.Parameters["additionalProperties"])
}

func TestRegistryKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(GetEssay())
	r.Register(ListTasks())
	r.Register(AnalyzeRisk())
	r.Register(ListTasks())

	assert.Equal(t, []string{"getEssay", "listTasks", "analyzeRisk"}, r.List())

	sub := r.Subset([]string{"analyzeRisk", "missing", "getEssay"})
	assert.Equal(t, []string{"analyzeRisk", "getEssay"}, sub.List())

	openai := sub.ToOpenAIFormat()
	require.Len(t, openai, 2)
	assert.Equal(t, "function", openai[0]["type"])
	assert.Equal(t, "analyzeRisk", openai[0]["function"].(*Schema).Name)

	raw, err := sub.ToJSON()
	require.NoError(t, err)
	var decoded []Schema
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 2)
}

func TestDeleteRecordRequiresEntityAndID(t *testing.T) {
	s := DeleteRecord()
	assert.ElementsMatch(t, []string{"entity", "id"}, s.Required())
}
