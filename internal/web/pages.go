package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	. "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	. "maragu.dev/gomponents/html"

	"github.com/KaramelBytes/csvchat/internal/ai"
	"github.com/KaramelBytes/csvchat/internal/config"
	"github.com/KaramelBytes/csvchat/internal/session"
	"github.com/KaramelBytes/csvchat/internal/table"
)

const appTitle = "Multiple CSV Chat App"

// pageView is a snapshot of the session taken under its lock.
type pageView struct {
	Key        config.Resolution
	Tables     []*table.Table
	Transcript []session.Message
	Notices    []session.Notice
}

func (h *Handler) view(s *session.Session) pageView {
	return pageView{
		Key:        config.Resolve(h.cfg, s.ManualKey(), s.Model()),
		Tables:     s.Tables().Tables(),
		Transcript: s.Transcript(),
		Notices:    s.DrainNotices(),
	}
}

func renderHTML(w http.ResponseWriter, status int, node Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}

func pageHead(title string) Node {
	return Head(
		Meta(Charset("utf-8")),
		Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
		TitleEl(Text(title)),
		Link(Rel("icon"), Href("data:,")),
		Link(Rel("stylesheet"), Href("/static/app.css")),
		Script(
			Type("module"),
			Src("https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.7/bundles/datastar.js"),
		),
	)
}

func (h *Handler) homePage(r *http.Request, v pageView) Node {
	return HTML(
		Lang("en"),
		pageHead(appTitle),
		Body(
			Div(Class("layout"),
				Aside(Class("sidebar"),
					settingsForm(r, v),
					uploadForm(r),
				),
				Main(Class("main"),
					H1(Text("🤖 "+appTitle)),
					P(Class("subtitle"), Text("Upload multiple CSV files and chat with your data")),
					noticeList(v.Notices),
					h.tablesSection(v.Tables),
					h.transcriptSection(v.Transcript),
					chatForm(r),
					helpSection(),
				),
			),
		),
	)
}

func errorPage(title, message string) Node {
	return HTML(
		Lang("en"),
		pageHead(title),
		Body(
			Main(Class("main"),
				H1(Text(title)),
				P(Text(message)),
				P(A(Href("/"), Text("Back to the app"))),
			),
		),
	)
}

func settingsForm(r *http.Request, v pageView) Node {
	var keyNode Node
	switch v.Key.Source {
	case config.SourceEnv:
		keyNode = Div(Class("notice notice-success"), Text("GROQ_API_KEY loaded from environment"))
	case config.SourceConfig:
		keyNode = Div(Class("notice notice-success"), Text("API key loaded from the config file"))
	case config.SourceManual:
		keyNode = Group{
			Div(Class("notice notice-info"), Text("Using the API key entered for this session")),
			Label(For("api_key"), Text("Replace the key:")),
			Input(Type("password"), ID("api_key"), Name("api_key"), AutoComplete("off")),
		}
	default:
		keyNode = Group{
			Label(For("api_key"), Text("GROQ_API_KEY not found in .env. Enter it here:")),
			Input(Type("password"), ID("api_key"), Name("api_key"), AutoComplete("off")),
		}
	}

	options := make([]Node, 0, len(ai.SupportedModels()))
	for _, m := range ai.SupportedModels() {
		options = append(options, Option(
			Value(m.Name),
			Text(m.Name),
			If(m.Name == v.Key.Model, Selected()),
		))
	}

	return Form(Method("post"), Action("/settings"),
		csrfField(r),
		H2(Text("Configuration")),
		keyNode,
		Label(For("model"), Text("Select Groq Model:")),
		Select(ID("model"), Name("model"), Group(options)),
		Button(Type("submit"), Text("Save")),
	)
}

func uploadForm(r *http.Request) Node {
	return Form(Method("post"), Action("/upload"), EncType("multipart/form-data"),
		csrfField(r),
		H2(Text("Upload CSV Files")),
		Label(For("files"), Text("Choose CSV files")),
		Input(Type("file"), ID("files"), Name("files"), Multiple(), Accept(".csv,text/csv")),
		Button(Type("submit"), Text("Upload")),
	)
}

func noticeList(notices []session.Notice) Node {
	if len(notices) == 0 {
		return nil
	}
	return Div(Class("notices"),
		Map(notices, func(n session.Notice) Node {
			return Div(Class("notice notice-"+string(n.Level)), Text(n.Text))
		}),
	)
}

// tablesSection renders one tab per table. Tab switching is client side; with
// scripts disabled every panel is shown.
func (h *Handler) tablesSection(tables []*table.Table) Node {
	if len(tables) == 0 {
		return nil
	}
	tabs := make([]Node, 0, len(tables))
	panels := make([]Node, 0, len(tables))
	for i, t := range tables {
		tabs = append(tabs, Label(
			Input(Type("radio"), Name("tab"), Value(t.Name), data.Bind("tab"), If(i == 0, Checked())),
			Span(Text(t.Name)),
		))
		panels = append(panels, Section(
			Class("table-panel"),
			data.Show("$tab === "+strconv.Quote(t.Name)),
			h.tablePanel(t),
		))
	}
	return Section(
		data.Signals(map[string]any{"tab": tables[0].Name}),
		H2(Text("Uploaded Data")),
		Div(Class("tabs"), Group(tabs)),
		Group(panels),
	)
}

func (h *Handler) tablePanel(t *table.Table) Node {
	rows, cols := t.Shape()
	limit := h.cfg.GridMaxRows
	if limit <= 0 || limit > rows {
		limit = rows
	}

	head := []Node{Th(Class("idx"))}
	for _, c := range t.Columns {
		head = append(head, Th(Text(c)))
	}
	body := make([]Node, 0, limit)
	for i := 0; i < limit; i++ {
		cells := []Node{Td(Class("idx"), Text(strconv.Itoa(i)))}
		for _, v := range t.Rows[i] {
			if table.IsMissing(v) {
				cells = append(cells, Td(Class("na"), Text("NaN")))
				continue
			}
			cells = append(cells, Td(Text(v)))
		}
		body = append(body, Tr(Group(cells)))
	}

	var caption Node
	if limit < rows {
		caption = P(Class("caption"), Text(fmt.Sprintf("Showing the first %d of %d rows.", limit, rows)))
	}

	return Group{
		P(Text(fmt.Sprintf("File: %s, Shape: (%d, %d)", t.Name, rows, cols))),
		Div(Class("grid"),
			Table(THead(Tr(Group(head))), TBody(Group(body))),
		),
		caption,
		profileDetails(table.Profile(t)),
	}
}

func profileDetails(rep *table.Report) Node {
	if len(rep.Cols) == 0 {
		return nil
	}
	rows := make([]Node, 0, len(rep.Cols))
	for _, c := range rep.Cols {
		rows = append(rows, Tr(
			Td(Class("idx"), Text(c.Name)),
			Td(Text(c.Kind)),
			Td(Text(strconv.Itoa(c.NonNull))),
			Td(Text(strconv.Itoa(c.Missing))),
			Td(Text(strconv.Itoa(c.Unique))),
			Td(Text(profileStats(c))),
		))
	}
	return Details(
		Summary(Text("Column profile")),
		Div(Class("grid"),
			Table(
				THead(Tr(
					Th(Class("idx"), Text("column")),
					Th(Text("type")),
					Th(Text("non-null")),
					Th(Text("missing")),
					Th(Text("unique")),
					Th(Text("stats")),
				)),
				TBody(Group(rows)),
			),
		),
	)
}

func profileStats(c table.ColumnSummary) string {
	switch c.Kind {
	case table.KindNumeric:
		return fmt.Sprintf("min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std)
	case table.KindCategorical:
		if len(c.TopValues) > 0 {
			return fmt.Sprintf("top %q (%d)", c.TopValues[0].Value, c.TopValues[0].Count)
		}
	}
	return ""
}

func (h *Handler) transcriptSection(msgs []session.Message) Node {
	if len(msgs) == 0 {
		return nil
	}
	nodes := make([]Node, 0, len(msgs))
	for i, m := range msgs {
		var id Node
		if i == len(msgs)-1 {
			id = ID("latest")
		}
		var content Node
		if m.Role == session.RoleAssistant {
			content = Div(Class("content"), h.markdown(m.Content))
		} else {
			content = Div(Class("content"), Text(m.Content))
		}
		nodes = append(nodes, Div(
			id,
			Class("msg msg-"+string(m.Role)),
			Div(Class("role"), Text(string(m.Role))),
			content,
		))
	}
	return Section(Class("transcript"), Group(nodes))
}

// markdown renders assistant text. Raw HTML in the source is dropped by the
// renderer, so the result is safe to embed.
func (h *Handler) markdown(src string) Node {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(src), &buf); err != nil {
		h.log.Warn("markdown render failed", "error", err)
		return Pre(Text(src))
	}
	return Raw(buf.String())
}

func chatForm(r *http.Request) Node {
	return Group{
		Form(Class("chat-form"), Method("post"), Action("/chat"),
			csrfField(r),
			Input(Type("text"), Name("message"), Placeholder("Ask about your CSV data..."), AutoComplete("off"), AutoFocus()),
			Button(Type("submit"), Text("Send")),
		),
		P(Class("caption"), A(Href("/transcript.json"), Text("Download transcript"))),
	}
}

func helpSection() Node {
	return Section(Class("help"),
		Hr(),
		H3(Text("How to use this app:")),
		Ol(
			Li(Text("Set GROQ_API_KEY in your environment or in a "), Code(Text(".env")), Text(" file, or enter it in the sidebar")),
			Li(Text("Upload one or more CSV files")),
			Li(Text("Chat with the assistant about your data")),
			Li(Text("Ask questions like:"),
				Ul(
					Li(Text(`"Summarize the data in file1.csv"`)),
					Li(Text(`"What's the average value of column X?"`)),
					Li(Text(`"Compare the distributions in file1.csv and file2.csv"`)),
					Li(Text(`"Find correlations between columns in file3.csv"`)),
				),
			),
		),
	)
}
