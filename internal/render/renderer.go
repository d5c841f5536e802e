// Package render produces the Hadoop configuration files for a topology.
// Output depends only on the topology and settings; equal inputs give
// byte-identical documents.
package render

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/samber/lo"

	"github.com/t77yq/cloudbench/internal/model"
)

// DocumentKind identifies one of the rendered configuration files
type DocumentKind string

const (
	DocumentCore            DocumentKind = "core"
	DocumentResourceManager DocumentKind = "resource-manager"
	DocumentStorage         DocumentKind = "storage"
	DocumentCompute         DocumentKind = "compute-framework"
	DocumentMembership      DocumentKind = "membership"
)

// Kinds lists every document kind in setup order
var Kinds = []DocumentKind{
	DocumentCore,
	DocumentResourceManager,
	DocumentStorage,
	DocumentCompute,
	DocumentMembership,
}

var documentPaths = map[DocumentKind]string{
	DocumentCore:            "etc/hadoop/core-site.xml",
	DocumentResourceManager: "etc/hadoop/yarn-site.xml",
	DocumentStorage:         "etc/hadoop/hdfs-site.xml",
	DocumentCompute:         "etc/hadoop/mapred-site.xml",
	DocumentMembership:      "etc/hadoop/slaves",
}

var documentTemplates = map[DocumentKind]string{
	DocumentCore:            "core",
	DocumentResourceManager: "yarn",
	DocumentStorage:         "hdfs",
	DocumentCompute:         "mapred",
	DocumentMembership:      "slaves",
}

// Document is a rendered configuration file
type Document struct {
	Kind DocumentKind
	// Path is relative to the install directory
	Path    string
	Content string
}

// Property is a single name/value pair of a *-site.xml file
type Property struct {
	Name        string
	Value       string
	Description string
}

// Renderer fills the configuration templates
type Renderer struct {
	settings model.ClusterSettings
}

// NewRenderer creates a new renderer
func NewRenderer(settings model.ClusterSettings) *Renderer {
	return &Renderer{settings: settings}
}

// Render renders the document of the given kind
func (r *Renderer) Render(kind DocumentKind, t model.Topology) (Document, error) {
	switch kind {
	case DocumentCore:
		return r.CoreSite(t)
	case DocumentResourceManager:
		return r.YarnSite(t)
	case DocumentStorage:
		return r.HDFSSite(t)
	case DocumentCompute:
		return r.MapredSite(t)
	case DocumentMembership:
		return r.Slaves(t)
	default:
		return Document{}, fmt.Errorf("unknown document kind %q", kind)
	}
}

// CoreSite renders core-site.xml
func (r *Renderer) CoreSite(t model.Topology) (Document, error) {
	return r.execute(DocumentCore, []Property{
		{
			Name:        "hadoop.tmp.dir",
			Value:       "file://" + r.settings.HomeDir() + "/tmp",
			Description: "Temporary Directory.",
		},
		{
			Name:        "fs.defaultFS",
			Value:       "hdfs://" + r.coordinatorAddr(t, r.settings.Ports.FileSystem),
			Description: "Use HDFS as file storage engine",
		},
	})
}

// MapredSite renders mapred-site.xml
func (r *Renderer) MapredSite(t model.Topology) (Document, error) {
	return r.execute(DocumentCompute, []Property{
		{
			Name:  "mapreduce.jobtracker.address",
			Value: r.coordinatorAddr(t, r.settings.Ports.JobTracker),
			Description: "The host and port that the MapReduce job tracker runs at. " +
				"If \"local\", then jobs are run in-process as a single map and reduce task.",
		},
		{
			Name:        "mapreduce.framework.name",
			Value:       "yarn",
			Description: "The framework for running mapreduce jobs",
		},
	})
}

// HDFSSite renders hdfs-site.xml
func (r *Renderer) HDFSSite(t model.Topology) (Document, error) {
	return r.execute(DocumentStorage, []Property{
		{
			Name:        "dfs.replication",
			Value:       strconv.Itoa(r.settings.Replication),
			Description: "Default block replication.",
		},
		{
			Name:        "dfs.namenode.name.dir",
			Value:       r.NameNodeDir(),
			Description: "Where the name node stores the name table (fsimage).",
		},
		{
			Name:        "dfs.datanode.data.dir",
			Value:       r.DataNodeDir(),
			Description: "Where a data node stores its blocks.",
		},
	})
}

// YarnSite renders yarn-site.xml. Every resource manager address points at
// the coordinator.
func (r *Renderer) YarnSite(t model.Topology) (Document, error) {
	p := r.settings.Ports
	return r.execute(DocumentResourceManager, []Property{
		{Name: "yarn.nodemanager.aux-services", Value: "mapreduce_shuffle"},
		{Name: "yarn.resourcemanager.scheduler.address", Value: r.coordinatorAddr(t, p.Scheduler)},
		{Name: "yarn.resourcemanager.address", Value: r.coordinatorAddr(t, p.ResourceManager)},
		{Name: "yarn.resourcemanager.webapp.address", Value: r.coordinatorAddr(t, p.WebApp)},
		{Name: "yarn.resourcemanager.resource-tracker.address", Value: r.coordinatorAddr(t, p.ResourceTracker)},
		{Name: "yarn.resourcemanager.admin.address", Value: r.coordinatorAddr(t, p.Admin)},
	})
}

// Slaves renders the membership list: each distinct node address once,
// sorted.
func (r *Renderer) Slaves(t model.Topology) (Document, error) {
	addrs := lo.Uniq(lo.Map(t.AllNodes(), func(n model.Node, _ int) string {
		return r.settings.NodeAddress(n)
	}))
	sort.Strings(addrs)

	return r.execute(DocumentMembership, addrs)
}

// NameNodeDir is where the coordinator keeps filesystem metadata
func (r *Renderer) NameNodeDir() string {
	return r.settings.HomeDir() + "/hdfs/namenode"
}

// DataNodeDir is where every node keeps blocks
func (r *Renderer) DataNodeDir() string {
	return r.settings.HomeDir() + "/hdfs/datanode"
}

func (r *Renderer) coordinatorAddr(t model.Topology, port int) string {
	return r.settings.NodeAddress(t.Coordinator()) + ":" + strconv.Itoa(port)
}

func (r *Renderer) execute(kind DocumentKind, data any) (Document, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, documentTemplates[kind], data); err != nil {
		return Document{}, fmt.Errorf("failed to render %s: %w", kind, err)
	}
	return Document{
		Kind:    kind,
		Path:    documentPaths[kind],
		Content: buf.String(),
	}, nil
}
