package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/cloudbench/internal/model"
)

func testTopology() model.Topology {
	coordinator := model.NewNode("master", "10.0.0.1")
	return model.NewTopology(coordinator, []model.Node{
		model.NewNode("slave-1", "10.0.0.3"),
		model.NewNode("slave-0", "10.0.0.2"),
		coordinator,
	})
}

func TestRenderer_CoreSite(t *testing.T) {
	r := NewRenderer(model.DefaultClusterSettings())

	doc, err := r.CoreSite(testTopology())
	require.NoError(t, err)

	assert.Equal(t, DocumentCore, doc.Kind)
	assert.Equal(t, "etc/hadoop/core-site.xml", doc.Path)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>
<?xml-stylesheet type="text/xsl" href="configuration.xsl"?>
<configuration>
<property>
 <name>hadoop.tmp.dir</name>
 <value>file:///home/hduser/tmp</value>
 <description>Temporary Directory.</description>
</property>
<property>
 <name>fs.defaultFS</name>
 <value>hdfs://10.0.0.1:54310</value>
 <description>Use HDFS as file storage engine</description>
</property>
</configuration>
`, doc.Content)
}

func TestRenderer_YarnSitePointsAtCoordinator(t *testing.T) {
	r := NewRenderer(model.DefaultClusterSettings())

	doc, err := r.YarnSite(testTopology())
	require.NoError(t, err)
	assert.Equal(t, "etc/hadoop/yarn-site.xml", doc.Path)

	for _, addr := range []string{"10.0.0.1:8030", "10.0.0.1:8031", "10.0.0.1:8032", "10.0.0.1:8033", "10.0.0.1:8088"} {
		assert.Contains(t, doc.Content, "<value>"+addr+"</value>")
	}
	assert.Equal(t, 5, strings.Count(doc.Content, "<value>10.0.0.1:"))
	assert.NotContains(t, doc.Content, "10.0.0.2")
	assert.NotContains(t, doc.Content, "<description>")
	assert.True(t, strings.HasPrefix(doc.Content, "<?xml version=\"1.0\"?>\n<configuration>\n"))
}

func TestRenderer_MapredSite(t *testing.T) {
	r := NewRenderer(model.DefaultClusterSettings())

	doc, err := r.MapredSite(testTopology())
	require.NoError(t, err)
	assert.Equal(t, "etc/hadoop/mapred-site.xml", doc.Path)
	assert.Contains(t, doc.Content, "<value>10.0.0.1:54311</value>")
	assert.Contains(t, doc.Content, "<value>yarn</value>")
	assert.Contains(t, doc.Content, "If &#34;local&#34;")
}

func TestRenderer_HDFSSite(t *testing.T) {
	settings := model.DefaultClusterSettings()
	settings.ServiceUser = "hadoop"
	settings.Replication = 3
	r := NewRenderer(settings)

	doc, err := r.HDFSSite(testTopology())
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "<name>dfs.replication</name>\n <value>3</value>")
	assert.Contains(t, doc.Content, "<value>/home/hadoop/hdfs/namenode</value>")
	assert.Contains(t, doc.Content, "<value>/home/hadoop/hdfs/datanode</value>")
}

func TestRenderer_SlavesListsEachAddressOnce(t *testing.T) {
	r := NewRenderer(model.DefaultClusterSettings())

	doc, err := r.Slaves(testTopology())
	require.NoError(t, err)
	assert.Equal(t, "etc/hadoop/slaves", doc.Path)
	assert.Equal(t, "10.0.0.1\n10.0.0.2\n10.0.0.3\n", doc.Content)

	// Worker order and overlap with the coordinator do not matter.
	shuffled := model.NewTopology(model.NewNode("master", "10.0.0.1"), []model.Node{
		model.NewNode("slave-0", "10.0.0.2"),
		model.NewNode("master", "10.0.0.1"),
		model.NewNode("slave-1", "10.0.0.3"),
		model.NewNode("slave-0", "10.0.0.2"),
	})
	other, err := r.Slaves(shuffled)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, other.Content)
}

func TestRenderer_SlavesUsesConfiguredInterface(t *testing.T) {
	settings := model.DefaultClusterSettings()
	settings.Interface = "eth1"
	r := NewRenderer(settings)

	coordinator := model.Node{Name: "master", Interfaces: map[string]string{"eth0": "1.2.3.4", "eth1": "192.168.0.1"}}
	worker := model.NewNode("slave", "1.2.3.5")

	doc, err := r.Slaves(model.NewTopology(coordinator, []model.Node{worker}))
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.5\n192.168.0.1\n", doc.Content)

	core, err := r.CoreSite(model.NewTopology(coordinator, nil))
	require.NoError(t, err)
	assert.Contains(t, core.Content, "hdfs://192.168.0.1:54310")
}

func TestRenderer_Deterministic(t *testing.T) {
	r := NewRenderer(model.DefaultClusterSettings())
	topology := testTopology()

	for _, kind := range Kinds {
		first, err := r.Render(kind, topology)
		require.NoError(t, err)
		second, err := r.Render(kind, topology)
		require.NoError(t, err)
		assert.Equal(t, first, second, "kind %s", kind)
	}
}

func TestRenderer_EscapesValues(t *testing.T) {
	settings := model.DefaultClusterSettings()
	settings.ServiceUser = "a<b>&c"
	r := NewRenderer(settings)

	doc, err := r.CoreSite(testTopology())
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "file:///home/a&lt;b&gt;&amp;c/tmp")
}

func TestRenderer_UnknownKind(t *testing.T) {
	_, err := NewRenderer(model.DefaultClusterSettings()).Render("hive", testTopology())
	assert.Error(t, err)
}
