package export

// Grid is a weekly timetable laid out as rows of time ranges against a fixed
// set of day columns. Cell values are preformatted display strings.
type Grid struct {
	Title string
	Days  []string
	Rows  []GridRow
}

// GridRow is a single time range across all days of the week.
type GridRow struct {
	TimeRange string
	Cells     map[string]string
}
