package model

// System is the root container of a project. It points at exactly one
// top-level assembly once that assembly exists.
type System struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	OverallAssemblyID *int64 `json:"overall_assembly_id,omitempty"`
}

// Assembly is a composite node that groups instances of parts and other
// assemblies. ParentAssemblyID is nil for top-level assemblies.
type Assembly struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	FileLocation     string `json:"file_location"`
	Image            string `json:"image,omitempty"`
	SystemID         *int64 `json:"system_id,omitempty"`
	ParentAssemblyID *int64 `json:"parent_assembly_id,omitempty"`
}

// Part is a leaf design element carrying zero or more features.
type Part struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	FileLocation string `json:"file_location"`
}

// Feature is a named attachment point owned by exactly one part and shared by
// every instance of that part.
type Feature struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	PartID int64  `json:"part_id"`
}

// AssemblyItem is one instance slot inside an assembly. Exactly one of PartID
// and SubAssemblyID is set.
type AssemblyItem struct {
	ID            int64  `json:"id"`
	AssemblyID    int64  `json:"assembly_id"`
	PartID        *int64 `json:"part_id,omitempty"`
	SubAssemblyID *int64 `json:"sub_assembly_id,omitempty"`
	InstanceName  string `json:"instance_name"`
}

// IsPartInstance reports whether the item instantiates a part.
func (i AssemblyItem) IsPartInstance() bool {
	return i.PartID != nil && i.SubAssemblyID == nil
}

// IsSubAssembly reports whether the item instantiates another assembly.
func (i AssemblyItem) IsSubAssembly() bool {
	return i.SubAssemblyID != nil && i.PartID == nil
}

// Connector links two features, each qualified by the assembly item that
// bears it.
type Connector struct {
	ID              int64         `json:"id"`
	Type            ConnectorType `json:"type"`
	Feature1ID      int64         `json:"feature1_id"`
	Feature2ID      int64         `json:"feature2_id"`
	AssemblyItem1ID int64         `json:"assembly_item1_id"`
	AssemblyItem2ID int64         `json:"assembly_item2_id"`
}
