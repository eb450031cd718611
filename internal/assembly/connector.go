package assembly

import (
	"context"
	"fmt"
)

// ValidateConnector checks that each (feature, item) end names a feature of
// the part that item instantiates directly, and that the two ends are
// distinct occurrences. Items that instantiate a sub-assembly cannot carry
// connectors.
func (r *Repository) ValidateConnector(ctx context.Context, feature1, item1, feature2, item2 int64) error {
	if err := r.validateConnectorEnd(ctx, feature1, item1); err != nil {
		return err
	}
	if err := r.validateConnectorEnd(ctx, feature2, item2); err != nil {
		return err
	}
	if feature1 == feature2 && item1 == item2 {
		return NewSelfConnectionError(feature1, item1)
	}
	return nil
}

func (r *Repository) validateConnectorEnd(ctx context.Context, featureID, itemID int64) error {
	feature, err := r.Feature(ctx, featureID)
	if err != nil {
		return err
	}
	item, err := r.Item(ctx, itemID)
	if err != nil {
		return err
	}
	if item.PartID == nil {
		return NewOwnershipError(
			fmt.Sprintf("assembly item %d (%s) instantiates a sub-assembly, not a part", item.ID, item.InstanceName),
			featureID, itemID)
	}
	if *item.PartID != feature.PartID {
		return NewOwnershipError(
			fmt.Sprintf("feature %d (%s) belongs to part %d, but assembly item %d (%s) instantiates part %d",
				feature.ID, feature.Name, feature.PartID, item.ID, item.InstanceName, *item.PartID),
			featureID, itemID)
	}
	return nil
}
