package topology

import (
	"fmt"
	"io"
	"strings"

	"github.com/emicklei/dot"

	"github.com/eleven-am/perimeter/internal/domain"
)

type Format string

const (
	FormatDOT     Format = "dot"
	FormatMermaid Format = "mermaid"
)

// layer groups kinds into the clusters drawn by Render.
func layer(kind domain.ResourceKind) string {
	switch kind {
	case domain.KindVPC, domain.KindInternetGateway, domain.KindSubnet, domain.KindElasticIP,
		domain.KindNATGateway, domain.KindRouteTable:
		return "network"
	case domain.KindSecurityGroup:
		return "security"
	case domain.KindRole, domain.KindInstanceProfile:
		return "identity"
	case domain.KindInstance:
		return "compute"
	case domain.KindTargetGroup, domain.KindLoadBalancer, domain.KindListener, domain.KindTargetAttachment:
		return "edge"
	case domain.KindDBSubnetGroup, domain.KindDBInstance:
		return "data"
	}
	return "other"
}

// Render writes the graph with each resource pointing at its dependencies.
func Render(g *Graph, format Format, w io.Writer) error {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")
	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})

	clusters := make(map[string]*dot.Graph)
	nodes := make(map[string]dot.Node, g.Len())
	for _, r := range g.Resources() {
		l := layer(r.Kind)
		cluster := clusters[l]
		if cluster == nil {
			cluster = graph.Subgraph(l, dot.ClusterOption{})
			cluster.Attr("label", l)
			cluster.Attr("style", "rounded")
			clusters[l] = cluster
		}
		n := cluster.Node(r.Name)
		n.Label(r.Name + "\\n[" + string(r.Kind) + "]")
		nodes[r.Name] = n
	}
	for _, r := range g.Resources() {
		for _, dep := range r.DependsOn {
			to, ok := nodes[dep]
			if !ok {
				continue
			}
			graph.Edge(nodes[r.Name], to)
		}
	}

	var output string
	switch format {
	case FormatMermaid:
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	case FormatDOT, "":
		output = graph.String()
	default:
		return fmt.Errorf("unknown graph format %q", format)
	}
	_, err := io.WriteString(w, output)
	return err
}

// RenderString is Render into a string.
func RenderString(g *Graph, format Format) (string, error) {
	var sb strings.Builder
	if err := Render(g, format, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
