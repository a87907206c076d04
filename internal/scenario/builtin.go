package scenario

import (
	"context"

	"athena-query-scheduler/internal/chain"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/params"
	"athena-query-scheduler/internal/scheduler"
	"athena-query-scheduler/internal/sqlbuild"
)

// Foo looks up users by name and the transactions of every matching user id.
func Foo() Scenario {
	return Scenario{
		Name:        "foo",
		Description: "users named by the name parameter and their transactions",
		Keys:        []string{"name", "user_id"},
		Setup: func(p *params.Store) error {
			return p.SetScalar("name", "john")
		},
		Tasks: func(env Env) []scheduler.Task {
			users := func(p *params.Store) (sqlbuild.QuerySpec, error) {
				names, err := p.Get("name")
				if err != nil {
					return sqlbuild.QuerySpec{}, err
				}
				return sqlbuild.Select(env.Table("user")).Where(sqlbuild.In("name", names...)), nil
			}
			return []scheduler.Task{
				query(env, "user", users),
				{ID: "transaction", Run: func(ctx context.Context) (models.Table, error) {
					parent, err := users(env.Params)
					if err != nil {
						return models.Table{}, err
					}
					parent.Columns = []string{"id"}
					return env.Chain.RunDependant(ctx, chain.Dependant{
						Parent:  parent.SQL(),
						Columns: []string{"id"},
						Params:  env.Params,
						Key:     "user_id",
						Child: func(ctx context.Context) (models.Table, error) {
							ids, err := env.Params.Get("user_id")
							if err != nil {
								return models.Table{}, err
							}
							spec := sqlbuild.Select(env.Table("transaction")).Where(sqlbuild.In("user_id", ids...))
							return env.Exec.Execute(ctx, spec.SQL())
						},
					})
				}},
			}
		},
	}
}

// Bar reads the groups matching group_id and the users belonging to them.
func Bar() Scenario {
	return Scenario{
		Name:        "bar",
		Description: "groups matching group_id and the users in them",
		Keys:        []string{"group_id", "user_id"},
		Setup: func(p *params.Store) error {
			return p.Set("group_id", "1")
		},
		Tasks: func(env Env) []scheduler.Task {
			byGroup := func(table string) func(p *params.Store) (sqlbuild.QuerySpec, error) {
				return func(p *params.Store) (sqlbuild.QuerySpec, error) {
					groups, err := p.Get("group_id")
					if err != nil {
						return sqlbuild.QuerySpec{}, err
					}
					return sqlbuild.Select(env.Table(table)).Where(sqlbuild.LikeAny("group_id", groups...)), nil
				}
			}
			return []scheduler.Task{
				query(env, "groups", byGroup("group")),
				{ID: "users", Run: func(ctx context.Context) (models.Table, error) {
					members, err := byGroup("group_member")(env.Params)
					if err != nil {
						return models.Table{}, err
					}
					members.Columns = []string{"user_id"}
					return env.Chain.RunDependant(ctx, chain.Dependant{
						Parent:  members.SQL(),
						Columns: []string{"user_id"},
						Params:  env.Params,
						Key:     "user_id",
						Child: func(ctx context.Context) (models.Table, error) {
							ids, err := env.Params.Get("user_id")
							if err != nil {
								return models.Table{}, err
							}
							spec := sqlbuild.Select(env.Table("user")).Where(sqlbuild.In("id", ids...))
							return env.Exec.Execute(ctx, spec.SQL())
						},
					})
				}},
			}
		},
	}
}

// GroupChain walks group, user and transaction in one chain, each step filtered by
// the values of the step before it.
func GroupChain() Scenario {
	return Scenario{
		Name:        "chain",
		Description: "transactions of the users in the groups matching group_id",
		Keys:        []string{"group_id"},
		Setup: func(p *params.Store) error {
			return p.Set("group_id", "1")
		},
		Tasks: func(env Env) []scheduler.Task {
			return []scheduler.Task{{ID: "group_transactions", Run: func(ctx context.Context) (models.Table, error) {
				groups, err := env.Params.Get("group_id")
				if err != nil {
					return models.Table{}, err
				}
				return env.Chain.Run(ctx, []chain.Step{
					{
						Spec:        sqlbuild.Select(env.Table("group"), "id").Where(sqlbuild.In("id", groups...)),
						CarryColumn: "id",
					},
					{
						Spec:           sqlbuild.Select(env.Table("user"), "id"),
						DependantField: "group_id",
						CarryColumn:    "id",
					},
					{
						Spec:           sqlbuild.Select(env.Table("transaction")),
						DependantField: "user_id",
					},
				})
			}}}
		},
	}
}
