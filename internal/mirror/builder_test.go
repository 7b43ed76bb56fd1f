package mirror

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
)

type fakeUpstream struct {
	toolsByServer map[string][]mcp.Tool
	errByServer   map[string]error
}

func (f *fakeUpstream) ListTools(_ context.Context, def *mcpconfig.ServerDefinition) ([]mcp.Tool, error) {
	if err, ok := f.errByServer[def.Name]; ok {
		return nil, err
	}
	return f.toolsByServer[def.Name], nil
}

func (f *fakeUpstream) PruneMissing(_ context.Context, _ map[string]struct{}) {}

func testServers(names ...string) map[string]*mcpconfig.ServerDefinition {
	out := map[string]*mcpconfig.ServerDefinition{}
	for _, n := range names {
		out[n] = &mcpconfig.ServerDefinition{Name: n, Command: "node", Raw: map[string]any{"command": "node"}}
	}
	return out
}

func TestBuildCatalogue_IncludesBrokerToolsAndMirrored(t *testing.T) {
	servers := testServers("demo")
	up := &fakeUpstream{toolsByServer: map[string][]mcp.Tool{
		"demo": {{Name: "echo", Description: "echoes input"}},
	}}
	b := NewBuilder(func() (*mcpconfig.LoadedServers, error) {
		return &mcpconfig.LoadedServers{Servers: servers, Sources: []string{"env:MCP_CONFIG"}, BlockedServers: map[string]string{}}, nil
	}, up, CapsFromEnv())

	tools, err := b.BuildCatalogue(context.Background())
	require.NoError(t, err)

	var found bool
	for _, tool := range tools {
		if tool.Name == "demo.echo" {
			found = true
		}
	}
	assert.True(t, found)
	assert.GreaterOrEqual(t, len(tools), 9) // 8 broker tools + 1 mirrored
}

func TestBuildCatalogue_CollisionSuffix(t *testing.T) {
	servers := testServers("a b", "a_b")
	up := &fakeUpstream{toolsByServer: map[string][]mcp.Tool{
		"a b": {{Name: "x"}},
		"a_b": {{Name: "x"}},
	}}
	b := NewBuilder(func() (*mcpconfig.LoadedServers, error) {
		return &mcpconfig.LoadedServers{Servers: servers, BlockedServers: map[string]string{}}, nil
	}, up, CapsFromEnv())

	tools, err := b.BuildCatalogue(context.Background())
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	assert.True(t, names["a_b.x"])
	var sawSuffixed bool
	for name := range names {
		if name != "a_b.x" && len(name) > len("a_b.x") && name[:len("a_b.x")] == "a_b.x" {
			sawSuffixed = true
		}
	}
	assert.True(t, sawSuffixed, "expected a collision-suffixed name, got %v", names)
}

func TestBuildCatalogue_SchemaCapTruncates(t *testing.T) {
	bigSchema, _ := json.Marshal(map[string]any{"type": "object", "properties": map[string]any{"x": map[string]any{"type": "string", "description": "padding padding padding padding"}}})
	require.Greater(t, len(bigSchema), 16)

	servers := testServers("demo")
	up := &fakeUpstream{toolsByServer: map[string][]mcp.Tool{
		"demo": {{Name: "big", RawInputSchema: bigSchema}},
	}}
	caps := CapsFromEnv()
	caps.MaxSchemaBytes = 16
	b := NewBuilder(func() (*mcpconfig.LoadedServers, error) {
		return &mcpconfig.LoadedServers{Servers: servers, BlockedServers: map[string]string{}}, nil
	}, up, caps)

	tools, err := b.BuildCatalogue(context.Background())
	require.NoError(t, err)

	var mirroredTool *mcp.Tool
	for i := range tools {
		if tools[i].Name == "demo.big" {
			mirroredTool = &tools[i]
		}
	}
	require.NotNil(t, mirroredTool)
	assert.JSONEq(t, `{"type":"object","additionalProperties":true}`, string(mirroredTool.RawInputSchema))

	status := b.MirrorStatus().(*Status)
	assert.True(t, status.Truncated)
}

func TestBuildCatalogue_MaxServersCap(t *testing.T) {
	servers := testServers("a", "b", "c")
	up := &fakeUpstream{toolsByServer: map[string][]mcp.Tool{}}
	caps := CapsFromEnv()
	caps.MaxServers = 2
	b := NewBuilder(func() (*mcpconfig.LoadedServers, error) {
		return &mcpconfig.LoadedServers{Servers: servers, BlockedServers: map[string]string{}}, nil
	}, up, caps)

	_, err := b.BuildCatalogue(context.Background())
	require.NoError(t, err)

	status := b.MirrorStatus().(*Status)
	assert.True(t, status.Truncated)
	assert.Equal(t, 2, status.ServersMirrored)
}

func TestResolveMirror_FallsBackToDotSplit(t *testing.T) {
	b := NewBuilder(nil, nil, CapsFromEnv())
	target, ok := b.ResolveMirror("unknownserver.sometool")
	require.True(t, ok)
	assert.Equal(t, "unknownserver", target.Server)
	assert.Equal(t, "sometool", target.Tool)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitize("a b!c"))
	assert.Equal(t, "already.ok-name_1", sanitize("already.ok-name_1"))
}

func TestMirrorStatus_UnknownBeforeBuild(t *testing.T) {
	b := NewBuilder(nil, nil, CapsFromEnv())
	status := b.MirrorStatus()
	assert.Equal(t, unknownStatus, status)
}
