package schema

// 10x Genomics templates.
const (
	TenxSingleCellID = "10x-single-cell-v2.0"
	VisiumSpatialID  = "spatial-visium-v1.0"
)

// tenxChemistries are the chemistry names accepted by Cell Ranger.
var tenxChemistries = []string{
	"auto", "threeprime", "fiveprime",
	"SC3Pv1", "SC3Pv2", "SC3Pv3", "SC3Pv3HT", "SC3Pv3LT", "SC3Pv4",
	"SC5P-PE", "SC5P-PE-v3", "SC5P-R2", "SC5P-R2-v3", "SC5PHT",
	"ARC-v1", "SFRP", "MFRP",
}

func tenxSingleCell() SchemaTemplate {
	return SchemaTemplate{
		ID:          TenxSingleCellID,
		Name:        "10x Single-Cell",
		Version:     "2.0",
		Platform:    "10x Genomics",
		Description: "Metadata for 10x Genomics single-cell library preparation.",
		Fields: []CanonicalField{
			{Name: "Library_ID", Type: FieldString, Required: true, Unique: true, Description: "Unique identifier for the 10x library."},
			{Name: "Sample_ID", Type: FieldString, Required: true, Unique: true, Description: "Source sample identifier."},
			{Name: "Chemistry", Type: FieldString, Required: true, Enum: tenxChemistries, Description: "The 10x Genomics chemistry version used.", Example: "SC3Pv3"},
			{Name: "Expected_Cells", Type: FieldInteger, Required: false, Min: bound(1), Description: "The number of cells targeted.", Example: "5000"},
		},
	}
}

func visiumSpatial() SchemaTemplate {
	return SchemaTemplate{
		ID:          VisiumSpatialID,
		Name:        "Spatial - Visium",
		Version:     "1.0",
		Platform:    "10x Genomics",
		Description: "Metadata for a 10x Visium spatial transcriptomics experiment.",
		Fields: []CanonicalField{
			{Name: "Slide_ID", Type: FieldString, Required: true, Unique: true, Description: "The serial number of the Visium slide."},
			{Name: "Capture_Area", Type: FieldString, Required: true, Pattern: `^[A-D][1-4]$`, Description: "The capture area on the slide (e.g., A1, B1).", Example: "A1"},
			{Name: "Library_ID", Type: FieldString, Required: true, Unique: true, Description: "Identifier for the library generated from this capture area."},
			{Name: "Block_ID", Type: FieldString, Required: true, Unique: true, Description: "Identifier for the FFPE block or tissue source."},
		},
	}
}
