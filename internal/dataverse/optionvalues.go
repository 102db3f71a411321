package dataverse

import (
	"context"
	"fmt"

	"dvbox/internal/dverrors"
)

// OptionValueTarget names the choice list an option-value operation
// works on: either a column on a table or a global option set. Exactly
// one addressing style must be filled in; OptionSetName wins when both
// are present because global edits are the rarer, more deliberate case.
type OptionValueTarget struct {
	EntityLogicalName    string
	AttributeLogicalName string
	OptionSetName        string
}

func (t OptionValueTarget) params() (map[string]interface{}, error) {
	if t.OptionSetName != "" {
		return map[string]interface{}{"OptionSetName": t.OptionSetName}, nil
	}
	if t.EntityLogicalName == "" || t.AttributeLogicalName == "" {
		return nil, dverrors.New(dverrors.KindValidation,
			"an option value operation needs OptionSetName or both EntityLogicalName and AttributeLogicalName")
	}
	return map[string]interface{}{
		"EntityLogicalName":    t.EntityLogicalName,
		"AttributeLogicalName": t.AttributeLogicalName,
	}, nil
}

// InsertOptionValue adds an option to a choice list and returns the
// numeric value the service assigned. Pass value to pick the number
// yourself; leave it nil to let the service allocate one.
func (s *Service) InsertOptionValue(ctx context.Context, connectionID string, target OptionValueTarget, label string, value *int) (int, error) {
	params, err := target.params()
	if err != nil {
		return 0, err
	}
	params["Label"] = NewLabel(label, DefaultLanguageCode)
	if value != nil {
		params["Value"] = *value
	}

	result, err := s.ExecuteAction(ctx, connectionID, Action{Name: "InsertOptionValue", Parameters: params})
	if err != nil {
		return 0, fmt.Errorf("insert option value failed: %w", err)
	}
	if assigned, ok := result["NewOptionValue"].(float64); ok {
		return int(assigned), nil
	}
	if value != nil {
		return *value, nil
	}
	return 0, dverrors.New(dverrors.KindService,
		"the service did not report the new option value")
}

// UpdateOptionValue relabels an existing option.
func (s *Service) UpdateOptionValue(ctx context.Context, connectionID string, target OptionValueTarget, value int, label string) error {
	params, err := target.params()
	if err != nil {
		return err
	}
	params["Value"] = value
	params["Label"] = NewLabel(label, DefaultLanguageCode)
	params["MergeLabels"] = true

	if _, err := s.ExecuteAction(ctx, connectionID, Action{Name: "UpdateOptionValue", Parameters: params}); err != nil {
		return fmt.Errorf("update option value failed: %w", err)
	}
	return nil
}

// DeleteOptionValue removes an option from a choice list.
func (s *Service) DeleteOptionValue(ctx context.Context, connectionID string, target OptionValueTarget, value int) error {
	params, err := target.params()
	if err != nil {
		return err
	}
	params["Value"] = value

	if _, err := s.ExecuteAction(ctx, connectionID, Action{Name: "DeleteOptionValue", Parameters: params}); err != nil {
		return fmt.Errorf("delete option value failed: %w", err)
	}
	return nil
}

// OrderOption rewrites the display order of a choice list to exactly
// the given sequence of values.
func (s *Service) OrderOption(ctx context.Context, connectionID string, target OptionValueTarget, values []int) error {
	if len(values) == 0 {
		return dverrors.New(dverrors.KindValidation, "the option order is empty")
	}
	params, err := target.params()
	if err != nil {
		return err
	}
	params["Values"] = values

	if _, err := s.ExecuteAction(ctx, connectionID, Action{Name: "OrderOption", Parameters: params}); err != nil {
		return fmt.Errorf("order options failed: %w", err)
	}
	return nil
}
