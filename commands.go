package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"wavebind/engine"
	"wavebind/graph"
	"wavebind/helpers"
	"wavebind/logger"
	"wavebind/schema"
	"wavebind/slots"
	"wavebind/task"
	"wavebind/transform"
)

// sourceType is the text node the CLI creates to feed connected parameters.
const sourceType = "PrimitiveStringMultiline"

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

type taskOptions struct {
	workflow string
	clientID string
	model    string
	values   []string
	links    []string
}

func parseTaskArgs(name string, args []string, extra ...func(*flag.FlagSet)) (taskOptions, error) {
	var opts taskOptions
	var links stringList

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&opts.workflow, "workflow", "", "load a saved workflow instead of creating a task node")
	fs.StringVar(&opts.clientID, "client", "", "client id sent with the prompt")
	fs.Var(&links, "link", "feed parameter from a text node, as name=text (repeatable)")
	for _, f := range extra {
		f(fs)
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.links = links

	rest := fs.Args()
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		opts.model = rest[0]
		rest = rest[1:]
	}
	opts.values = rest

	if opts.model == "" && opts.workflow == "" {
		return opts, errors.New("a model or -workflow is required")
	}
	return opts, nil
}

// session is one graph with a single task node under the engine's control.
type session struct {
	engine *engine.Engine
	graph  *graph.Graph
	nodeID int
}

func (a *app) newSession(ctx context.Context, opts taskOptions) (*session, error) {
	reg := graph.NewRegistry()
	reg.Register(sourceType, func() *graph.Node {
		n := graph.NewNode(sourceType)
		n.AddWidget(&graph.Widget{Name: "value", Kind: graph.WidgetMultiline, Value: ""})
		n.AddOutput("STRING", "STRING")
		return n
	})

	g := graph.New(reg)
	e := engine.New(g, a.catalog, a.history, engine.Options{
		NodeType: a.config.Engine.NodeType,
		Slots:    a.config.Engine.Slots,
		Context:  ctx,
	})
	s := &session{engine: e, graph: g}

	if opts.workflow != "" {
		data, err := os.ReadFile(opts.workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to read workflow: %w", err)
		}
		doc, err := graph.ParseDocument(data)
		if err != nil {
			return nil, err
		}
		g.Configure(doc)

		tasks := e.TaskNodes()
		if len(tasks) == 0 {
			return nil, fmt.Errorf("workflow %s has no %q node", opts.workflow, e.NodeType())
		}
		s.nodeID = tasks[0]
		logger.Info("Loaded workflow", "file", opts.workflow, "nodes", len(g.Nodes()), "task", s.nodeID)
	} else {
		n, err := g.Create(e.NodeType())
		if err != nil {
			return nil, err
		}
		s.nodeID = n.ID
	}

	if opts.model != "" {
		if err := e.SelectModel(ctx, s.nodeID, opts.model); err != nil {
			return nil, err
		}
	}

	for _, kv := range opts.values {
		name, raw, _ := strings.Cut(kv, "=")
		if err := e.SetValue(s.nodeID, name, parseValue(raw)); err != nil {
			return nil, err
		}
	}
	for _, kv := range opts.links {
		name, text, _ := strings.Cut(kv, "=")
		if err := s.link(name, text); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// link feeds parameter name from a new text node holding text.
func (s *session) link(name, text string) error {
	st, err := s.engine.State(s.nodeID)
	if err != nil {
		return err
	}
	port, ok := st.Port(name)
	if !ok {
		return fmt.Errorf("parameter %q has no port", name)
	}

	src, err := s.graph.Create(sourceType)
	if err != nil {
		return err
	}
	if w, ok := src.Widget("value"); ok {
		w.Value = text
	}

	node, _ := s.graph.Node(s.nodeID)
	_, err = s.graph.Connect(src.ID, 0, s.nodeID, node.FindInput(port))
	return err
}

// resolveTask reads the task node's backend fields and the values arriving
// on its placeholders, and resolves them the way the backend does.
func (s *session) resolveTask() (transform.Task, error) {
	node, ok := s.graph.Node(s.nodeID)
	if !ok {
		return transform.Task{}, fmt.Errorf("task node %d: %w", s.nodeID, graph.ErrNodeNotFound)
	}

	fields := make(map[string]string, 3)
	for _, name := range []string{transform.FieldModelID, transform.FieldRequestJSON, transform.FieldParamMap} {
		if w, ok := node.Widget(name); ok {
			fields[name], _ = w.Value.(string)
		}
	}

	placeholders := make(map[string]any)
	for _, in := range node.Inputs {
		if slots.ParsePlaceholder(in.Name) == 0 || in.Link == 0 {
			continue
		}
		l, ok := s.graph.Link(in.Link)
		if !ok {
			continue
		}
		src, ok := s.graph.Node(l.OriginID)
		if !ok {
			continue
		}
		w, ok := src.Widget("value")
		if !ok {
			logger.Warn("Placeholder source has no value to read", "placeholder", in.Name, "source", src.Type)
			continue
		}
		placeholders[in.Name] = w.Value
	}

	return transform.Resolve(fields[transform.FieldModelID], fields[transform.FieldRequestJSON], fields[transform.FieldParamMap], placeholders), nil
}

// parseValue reads numbers, booleans, arrays and objects as JSON and keeps
// anything else as a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func (a *app) categories(ctx context.Context) error {
	options, err := a.catalog.Categories(ctx)
	if err != nil {
		return err
	}
	for _, o := range options {
		fmt.Printf("%-32s %s\n", o.Value, o.Name)
	}
	return nil
}

func (a *app) models(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: models <category>")
	}
	options, err := a.catalog.Models(ctx, args[0])
	if err != nil {
		return err
	}
	for _, o := range options {
		fmt.Printf("%-48s %s\n", o.Value, o.Name)
	}
	return nil
}

type schemaView struct {
	Model      string             `yaml:"model"`
	Name       string             `yaml:"name,omitempty"`
	Parameters []schema.Parameter `yaml:"parameters"`
	SlotOrder  []string           `yaml:"slotOrder"`
}

func (a *app) schema(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: schema <model>")
	}
	detail, err := a.catalog.Detail(ctx, args[0])
	if err != nil {
		return err
	}
	params, err := schema.Parse(detail.InputSchema)
	if err != nil {
		return err
	}

	view := schemaView{Model: detail.ID, Name: detail.Name, Parameters: params}
	for _, p := range slots.Order(params) {
		if p.Type.PortEligible() {
			view.SlotOrder = append(view.SlotOrder, fmt.Sprintf("%s (priority %d)", p.Name, slots.Priority(p.Name)))
		}
	}
	return printYAML(view)
}

type paramView struct {
	Name        string         `yaml:"name"`
	Type        schema.TypeTag `yaml:"type"`
	Required    bool           `yaml:"required,omitempty"`
	Value       any            `yaml:"value"`
	Placeholder string         `yaml:"placeholder,omitempty"`
	Input       string         `yaml:"input"`
}

type nodeView struct {
	Node        int                                 `yaml:"node"`
	Model       string                              `yaml:"model"`
	Category    string                              `yaml:"category,omitempty"`
	Parameters  []paramView                         `yaml:"parameters"`
	RequestJSON map[string]any                      `yaml:"requestJson"`
	ParamMap    map[string]transform.PlaceholderRef `yaml:"paramMap"`
}

func (a *app) bind(ctx context.Context, args []string) error {
	opts, err := parseTaskArgs("bind", args)
	if err != nil {
		return err
	}
	s, err := a.newSession(ctx, opts)
	if err != nil {
		return err
	}
	st, err := s.engine.State(s.nodeID)
	if err != nil {
		return err
	}
	p, err := s.engine.Payload(s.nodeID)
	if err != nil {
		return err
	}

	view := nodeView{
		Node:        s.nodeID,
		Model:       st.ModelID,
		Category:    st.Category,
		RequestJSON: p.RequestJSON,
		ParamMap:    p.ParamMap,
	}
	bindings := st.Bindings()
	for _, param := range st.Parameters {
		pv := paramView{
			Name:     param.Name,
			Type:     param.Type,
			Required: param.Required,
			Input:    helpers.LinkIndicator(st.Linked(param.Name)),
		}
		if w, ok := st.Widget(param.Name); ok {
			pv.Value = w.Value
			if text, isText := w.Value.(string); isText {
				pv.Value = helpers.Shorten(text, 80)
			}
		}
		if b, ok := bindings[param.Name]; ok {
			pv.Placeholder = b.Placeholder()
		}
		view.Parameters = append(view.Parameters, pv)
	}

	if err := s.engine.Remember(s.nodeID); err != nil {
		return err
	}
	return printYAML(view)
}

func (a *app) transform(ctx context.Context, args []string) error {
	opts, err := parseTaskArgs("transform", args)
	if err != nil {
		return err
	}
	s, err := a.newSession(ctx, opts)
	if err != nil {
		return err
	}
	_, doc := s.engine.PrepareExecution(opts.clientID)
	data, err := doc.JSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func (a *app) prompt(ctx context.Context, args []string) error {
	opts, err := parseTaskArgs("prompt", args)
	if err != nil {
		return err
	}
	s, err := a.newSession(ctx, opts)
	if err != nil {
		return err
	}
	prompt, _ := s.engine.PrepareExecution(opts.clientID)
	return printJSON(prompt)
}

func (a *app) resolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	model := fs.String("model", "", "model_id field")
	request := fs.String("request", "{}", "request_json field")
	paramMap := fs.String("param-map", "{}", "param_map field")
	if err := fs.Parse(args); err != nil {
		return err
	}

	placeholders := make(map[string]any)
	for _, kv := range fs.Args() {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || slots.ParsePlaceholder(name) == 0 {
			return fmt.Errorf("expected param_N=value, got %q", kv)
		}
		placeholders[name] = parseValue(raw)
	}

	return printJSON(transform.Resolve(*model, *request, *paramMap, placeholders))
}

func (a *app) submit(ctx context.Context, args []string) error {
	var noWait bool
	opts, err := parseTaskArgs("submit", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&noWait, "no-wait", false, "return as soon as the task is accepted")
	})
	if err != nil {
		return err
	}
	if a.config.Task.ApiKey == "" {
		return errors.New("wavespeed.apiKey is not configured")
	}

	s, err := a.newSession(ctx, opts)
	if err != nil {
		return err
	}
	if err := s.engine.Remember(s.nodeID); err != nil {
		return err
	}
	t, err := s.resolveTask()
	if err != nil {
		return err
	}

	r, err := a.tasks.Submit(ctx, t, !noWait)
	if err != nil {
		return err
	}
	if noWait {
		return printYAML(r)
	}
	out, err := task.Check(r)
	if err != nil {
		return err
	}
	return printYAML(out)
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	wait := fs.Bool("wait", false, "poll until the task completes or fails")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: status [-wait] <task-id>")
	}
	if a.config.Task.ApiKey == "" {
		return errors.New("wavespeed.apiKey is not configured")
	}

	var r task.Result
	var err error
	if *wait {
		r, err = a.tasks.Wait(ctx, fs.Arg(0))
	} else {
		r, err = a.tasks.Status(ctx, fs.Arg(0))
	}
	if err != nil {
		return err
	}
	out, err := task.Check(r)
	if err != nil {
		return err
	}
	if out.TaskID != "" && r.Status != task.StatusCompleted {
		logger.Info("Task still in progress", "task", r.ID, "status", r.Status)
	}
	return printYAML(out)
}

type historyView struct {
	Model    string   `yaml:"model"`
	Category string   `yaml:"category,omitempty"`
	Age      string   `yaml:"age"`
	Values   []string `yaml:"values"`
}

func (a *app) showHistory(args []string) error {
	if len(args) == 1 && args[0] == "clear" {
		a.history.Clear()
		logger.Info("History cleared")
		return nil
	}

	var views []historyView
	for _, r := range a.history.Records() {
		v := historyView{Model: r.ModelID, Category: r.Category, Age: helpers.Age(r.Timestamp)}
		names := make([]string, 0, len(r.Values))
		for name := range r.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := r.Values[name]
			line := fmt.Sprintf("%s %s = %v", helpers.LinkIndicator(value.Linked), name, value.Value)
			if src, ok := r.Connections[name]; ok {
				line += fmt.Sprintf(" <- node %d slot %d", src.NodeID, src.OutputSlot)
			}
			v.Values = append(v.Values, helpers.Shorten(line, 120))
		}
		views = append(views, v)
	}
	return printYAML(views)
}
