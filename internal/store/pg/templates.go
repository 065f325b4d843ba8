package pg

import (
	"context"

	"campaigns/internal/domain"
)

func (s *Store) GetTemplate(ctx context.Context, id string) (domain.Template, bool, error) {
	var t domain.Template
	row := s.DB.QueryRow(ctx, `
		SELECT id, owner_id, name, language, status, COALESCE(body,'') FROM templates WHERE id=$1
	`, id)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Language, &t.Status, &t.Body)
	if err != nil {
		if noRows(err) {
			return domain.Template{}, false, nil
		}
		return domain.Template{}, false, err
	}
	return t, true, nil
}

func (s *Store) GetTemplateVariables(ctx context.Context, templateID string) ([]domain.TemplateVariable, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT position, variable_name, COALESCE(contact_field_mapping,''), COALESCE(default_value,'')
		FROM template_variables WHERE template_id=$1 ORDER BY position
	`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TemplateVariable
	for rows.Next() {
		var v domain.TemplateVariable
		if err := rows.Scan(&v.Position, &v.VariableName, &v.ContactFieldMapping, &v.DefaultValue); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
