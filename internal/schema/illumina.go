package schema

// IlluminaNGSRunID identifies the Illumina sequencing run template.
const IlluminaNGSRunID = "illumina-ngs-run-v1.2"

// illuminaNGSRun describes a standard Illumina sequencing run sample sheet.
func illuminaNGSRun() SchemaTemplate {
	return SchemaTemplate{
		ID:          IlluminaNGSRunID,
		Name:        "Illumina NGS Run",
		Version:     "1.2",
		Platform:    "Illumina",
		Description: "Metadata for a standard Illumina sequencing run.",
		Fields: []CanonicalField{
			{Name: "Run_ID", Type: FieldString, Required: true, Unique: true, Description: "Unique identifier for the sequencing run."},
			{Name: "Sample_ID", Type: FieldString, Required: true, Unique: true, Description: "Identifier for the sample being sequenced."},
			{Name: "Library_ID", Type: FieldString, Required: true, Unique: true, References: TenxSingleCellID, Description: "Identifier for the sequencing library."},
			{Name: "Lane", Type: FieldInteger, Required: true, Min: bound(1), Max: bound(8), Description: "Flowcell lane number.", Example: "1"},
			{Name: "Index_I1", Type: FieldString, Required: true, Pattern: `^[ATGCN]+$`, Description: "The first index sequence (i7).", Example: "ATTACTCG"},
			{Name: "Index_I2", Type: FieldString, Required: false, Pattern: `^[ATGCN]*$`, Description: "The second index sequence (i5), if applicable.", Example: "TATAGCCT"},
		},
	}
}

// BuiltinTemplates returns the built-in catalog in display order.
// Each call returns fresh values.
func BuiltinTemplates() []SchemaTemplate {
	return []SchemaTemplate{
		illuminaNGSRun(),
		tenxSingleCell(),
		visiumSpatial(),
	}
}
