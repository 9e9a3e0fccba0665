package typegen

import (
	"fmt"
	"sort"

	"tablegraph/internal/naming"
	"tablegraph/internal/store"
)

// Config controls schema generation.
type Config struct {
	Naming naming.Config
	// Overrides maps database -> table -> override.
	Overrides map[string]map[string]store.Override
}

// Compile builds the Plan for tables drawn from one or more databases. Tables
// whose names repeat across databases are all published as database_table.
// Any remaining clash between exposed names is a *naming.CollisionError.
func Compile(tables []store.TableMeta, cfg Config) (*Plan, error) {
	m := naming.New(cfg.Naming)
	reg := naming.NewRegistry()

	occurrences := make(map[string]int)
	for _, t := range tables {
		occurrences[t.Name]++
	}

	plan := &Plan{byKey: make(map[string]*TypeSet)}
	for _, t := range tables {
		if o, ok := cfg.Overrides[t.Database][t.Name]; ok {
			t = t.WithOverride(o)
		}
		exposed := t.Name
		if occurrences[t.Name] > 1 {
			exposed = t.Database + "_" + t.Name
		}
		ts := Build(t, exposed, m)
		if _, dup := plan.byKey[ts.Key]; dup {
			return nil, fmt.Errorf("table %s listed twice", ts.Key)
		}
		if err := register(reg, ts); err != nil {
			return nil, err
		}
		plan.byKey[ts.Key] = ts
		plan.Types = append(plan.Types, ts)
	}

	sort.Slice(plan.Types, func(i, j int) bool {
		return plan.Types[i].CollectionFieldName < plan.Types[j].CollectionFieldName
	})

	for _, ts := range plan.Types {
		if err := wireRelations(plan, ts, m, reg); err != nil {
			return nil, err
		}
	}

	for _, ts := range plan.Types {
		plan.Root = append(plan.Root,
			RootField{Name: ts.CollectionFieldName, TableKey: ts.Key},
			RootField{Name: ts.RowFieldName, TableKey: ts.Key, Singular: true},
		)
	}
	return plan, nil
}

func register(reg *naming.Registry, ts *TypeSet) error {
	source := "table:" + ts.Key
	for _, name := range []string{ts.CollectionFieldName, ts.RowFieldName} {
		if err := reg.Register("Query", name, source); err != nil {
			return err
		}
	}
	for _, name := range []string{ts.RowType, ts.CollectionType, ts.EdgeType, ts.FilterInput, ts.SortEnum, ts.SortDescEnum} {
		if err := reg.Register("types", name, source); err != nil {
			return err
		}
	}
	for _, f := range ts.Fields {
		if err := reg.Register("fields:"+ts.RowType, f.Name, "column:"+ts.Key+"."+f.Column); err != nil {
			return err
		}
	}
	for _, v := range ts.SortValues {
		if err := reg.Register("enum:"+ts.SortEnum, v.Name, "column:"+ts.Key+"."+v.Column); err != nil {
			return err
		}
	}
	return nil
}

// wireRelations turns ts's foreign key columns into forward fields and adds
// the matching reverse collection fields on each referenced table.
func wireRelations(plan *Plan, ts *TypeSet, m *naming.Mapper, reg *naming.Registry) error {
	perTarget := make(map[string]int)
	for _, fk := range ts.Table.ForeignKeys {
		perTarget[fk.RefTable]++
	}

	for _, fk := range ts.Table.ForeignKeys {
		target, ok := plan.byKey[TableKey(ts.Table.Database, fk.RefTable)]
		if !ok {
			continue
		}
		refColumn := fk.RefColumn
		if refColumn == "" {
			keys := target.Table.KeyColumns()
			if len(keys) != 1 {
				continue
			}
			refColumn = keys[0]
		}

		idx := fieldIndex(ts.Fields, fk.Column)
		if idx < 0 {
			continue
		}
		forward := &ts.Fields[idx]
		forward.Kind = FieldForward
		forward.Target = target.Key
		forward.RefColumn = refColumn
		forward.Description = fmt.Sprintf("The %s row referenced by %s", m.Singularize(target.Table.Name), fk.Column)

		name := m.Join(ts.CollectionFieldName, "list")
		if perTarget[fk.RefTable] > 1 {
			name = m.Join(ts.CollectionFieldName, "by", m.Map(fk.Column, naming.RoleColumn), "list")
		}
		source := "relation:" + ts.Key + "." + fk.Column
		scope := "fields:" + target.RowType
		if reg.Exists(scope, name) {
			name = m.Join(name, "rel")
		}
		if err := reg.Register(scope, name, source); err != nil {
			return err
		}
		target.Fields = append(target.Fields, Field{
			Name:         name,
			Kind:         FieldReverse,
			Description:  fmt.Sprintf("Rows from %s whose %s references this %s", ts.Table.Name, fk.Column, m.Singularize(target.Table.Name)),
			Target:       ts.Key,
			RefColumn:    refColumn,
			SourceColumn: fk.Column,
		})
	}
	return nil
}

func fieldIndex(fields []Field, column string) int {
	for i, f := range fields {
		if f.Kind == FieldColumn && f.Column == column {
			return i
		}
	}
	return -1
}
