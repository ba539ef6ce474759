package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herculesaleixo/stackform/internal/ir"
	"github.com/herculesaleixo/stackform/internal/schema"
)

func loadTemplate(t *testing.T, raw string) *ir.Template {
	t.Helper()
	tpl, err := Load([]byte(raw), "t", nil)
	require.NoError(t, err)
	return tpl
}

func TestValidate_OK(t *testing.T) {
	tpl := loadTemplate(t, `
Resources:
  logs:
    Type: aws:logs.LogGroup
    Properties:
      logGroupName: /app/web
  app:
    Type: null:Resource
    DependsOn: [logs]
    Properties:
      group: !Ref logs
      groupName: !GetAtt logs.logGroupName
`)
	assert.NoError(t, Validate(tpl, schema.Builtin(), nil))
}

func TestValidate_DuplicateName(t *testing.T) {
	tpl := &ir.Template{
		Resources: []*ir.Resource{
			{Name: "app", Type: "null:Resource", Provider: "null"},
			{Name: "app", Type: "null:Resource", Provider: "null"},
		},
	}
	err := Validate(tpl, schema.Builtin(), nil)
	var schemaErr *ir.SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "app", schemaErr.Resource)
}

func TestValidate_UnknownType(t *testing.T) {
	tpl := loadTemplate(t, `
Resources:
  app:
    Type: made:Up
`)
	err := Validate(tpl, schema.Builtin(), nil)
	var schemaErr *ir.SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
}

func TestValidate_MissingRequiredProperty(t *testing.T) {
	tpl := loadTemplate(t, `
Resources:
  logs:
    Type: aws:logs.LogGroup
`)
	err := Validate(tpl, schema.Builtin(), nil)
	var schemaErr *ir.SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "logGroupName", schemaErr.Property)
}

func TestValidate_UnresolvedRefTarget(t *testing.T) {
	tpl := loadTemplate(t, `
Resources:
  app:
    Type: null:Resource
    Properties:
      upstream: !Ref ghost
`)
	err := Validate(tpl, schema.Builtin(), nil)
	var refErr *ir.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "ghost", refErr.Target)
}

func TestValidate_UnknownAttribute(t *testing.T) {
	tpl := loadTemplate(t, `
Resources:
  logs:
    Type: aws:logs.LogGroup
    Properties:
      logGroupName: /app/web
  app:
    Type: null:Resource
    Properties:
      bad: !GetAtt logs.retentionPeriod
`)
	err := Validate(tpl, schema.Builtin(), nil)
	var refErr *ir.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "logs", refErr.Target)
	assert.Equal(t, "retentionPeriod", refErr.Attr)
}

func TestValidate_UnknownDependsOn(t *testing.T) {
	tpl := loadTemplate(t, `
Resources:
  app:
    Type: null:Resource
    DependsOn: [ghost]
`)
	err := Validate(tpl, schema.Builtin(), nil)
	var refErr *ir.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "ghost", refErr.Target)
}

func TestValidate_Imports(t *testing.T) {
	tpl := loadTemplate(t, `
Resources:
  app:
    Type: null:Resource
    Properties:
      zone: !ImportValue network/zoneId
`)

	err := Validate(tpl, schema.Builtin(), nil)
	var refErr *ir.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)

	exports := map[string]map[string]any{"network": {"zoneId": "Z123"}}
	assert.NoError(t, Validate(tpl, schema.Builtin(), exports))

	// the namespace exists but the key does not
	err = Validate(tpl, schema.Builtin(), map[string]map[string]any{"network": {}})
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "zoneId", refErr.Attr)
}

func TestValidate_OutputReferences(t *testing.T) {
	tpl := loadTemplate(t, `
Resources:
  app:
    Type: null:Resource
Outputs:
  ghostId:
    Value: !Ref ghost
`)
	err := Validate(tpl, schema.Builtin(), nil)
	var refErr *ir.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
}

func TestResolveOutputs(t *testing.T) {
	tpl := loadTemplate(t, `
Name: web
Resources:
  app:
    Type: null:Resource
Outputs:
  appId:
    Value: !Ref app
    Export: appId
  label:
    Value: hello
  pending:
    Value: !Ref missing
`)

	st := ir.NewState("test")
	st.Resources["app"] = &ir.ResourceState{
		Name: "app", Type: "null:Resource", Provider: "null", RemoteID: "null-app-1",
	}

	outputs, exports := ResolveOutputs(tpl, st)
	assert.Equal(t, map[string]any{"appId": "null-app-1", "label": "hello"}, outputs)
	assert.Equal(t, map[string]any{"appId": "null-app-1"}, exports)
}

func TestResolveOutputs_Imports(t *testing.T) {
	tpl := loadTemplate(t, `
Resources: {}
Outputs:
  zone:
    Value: !ImportValue network/zoneId
`)
	st := ir.NewState("test")
	st.Exports = map[string]map[string]any{"network": {"zoneId": "Z123"}}

	outputs, _ := ResolveOutputs(tpl, st)
	assert.Equal(t, map[string]any{"zone": "Z123"}, outputs)
}
